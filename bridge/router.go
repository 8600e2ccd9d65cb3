package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blogem/ha-gateway/models"
	"github.com/blogem/ha-gateway/observability"
	"github.com/blogem/ha-gateway/ratelimit"
	"github.com/blogem/ha-gateway/services"
	"github.com/blogem/ha-gateway/userctx"
)

type hostKey struct{}

// WithHost records the host the client connected to, used to build the ws/connect URL
func WithHost(ctx context.Context, host string) context.Context {
	return context.WithValue(ctx, hostKey{}, host)
}

func hostFrom(ctx context.Context) string {
	host, _ := ctx.Value(hostKey{}).(string)
	return host
}

// Router dispatches method calls. Every outcome, including panics, becomes a BridgeEnvelope.
type Router struct {
	services *services.Services
	limiter  *ratelimit.Limiter
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Options are the collaborators of a Router
type Options struct {
	Services *services.Services
	// Limiter may be nil, which disables rate limiting
	Limiter *ratelimit.Limiter
	Metrics *observability.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// NewRouter creates a new method router
func NewRouter(opts Options) *Router {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Router{
		services: opts.Services,
		limiter:  opts.Limiter,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// RateLimit returns the configured cap and how many calls identity has left.
// Both are zero when rate limiting is disabled.
func (r *Router) RateLimit(identity string) (limit, remaining int) {
	if r.limiter == nil {
		return 0, 0
	}
	return r.limiter.Config().MaxRequests, r.limiter.Remaining(identity, r.now())
}

// Dispatch runs one method call for identity and wraps the outcome in an envelope
func (r *Router) Dispatch(ctx context.Context, name string, args map[string]interface{}, identity string) (env models.BridgeEnvelope) {
	start := time.Now()

	requestID := userctx.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = userctx.SetRequestID(ctx, requestID)
	}
	ctx = userctx.SetCaller(ctx, identity)

	method, known := ParseMethod(name)
	label := method.String()

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in bridge method", "method", name, "request_id", requestID, "panic", rec)
			env = models.NewErrorEnvelope(name, models.NewError(models.ErrInternal, "internal error"), nil, r.now())
		}
		env.RequestID = requestID
		r.metrics.ObserveRequest(label, string(env.ErrorCode()), time.Since(start))
	}()

	if !known {
		err := models.NewError(models.ErrUnknownMethod, "unknown method: "+name).
			WithDetail("available_methods", MethodNames())
		return models.NewErrorEnvelope(name, err, nil, r.now())
	}

	if method.RateLimited() && r.limiter != nil && !r.limiter.Admit(identity, r.now()) {
		r.metrics.RateLimited(label)
		r.logger.Warn("rate limit exceeded", "method", label, "caller", identity)
		cfg := r.limiter.Config()
		err := models.NewError(models.ErrRateLimited,
			fmt.Sprintf("rate limit exceeded: %d requests per %s", cfg.MaxRequests, cfg.Window)).
			WithDetail("limit", cfg.MaxRequests).
			WithDetail("window_seconds", int(cfg.Window/time.Second))
		return models.NewErrorEnvelope(name, err, nil, r.now())
	}

	result, err := r.call(ctx, method, args, identity)
	if err != nil {
		if models.CodeOf(err) == models.ErrInternal {
			r.logger.Error("bridge method failed", "method", label, "request_id", requestID, "error", err)
		}
		return models.NewErrorEnvelope(name, err, result, r.now())
	}
	return models.NewSuccessEnvelope(name, result, r.now())
}

// call runs the handler for method. A nil pointer result is returned as an untyped nil.
func (r *Router) call(ctx context.Context, method Method, args map[string]interface{}, identity string) (interface{}, error) {
	switch method {
	case MethodQuery:
		var a queryArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		params, err := scalarParams(a.Params)
		if err != nil {
			return nil, err
		}
		res, err := r.services.Query.Execute(ctx, models.QueryRequest{SQL: a.Query, Params: params, Caller: identity})
		return asResult(res, err)

	case MethodAppendLines:
		var a appendArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		res, err := r.services.Config.AppendLines(ctx, identity, a.request())
		return asResult(res, err)

	case MethodInsertFile:
		var a insertArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		res, err := r.services.Config.InsertFile(ctx, identity, a.request())
		return asResult(res, err)

	case MethodTables:
		res, err := r.services.Recorder.Tables(ctx)
		return asResult(res, err)

	case MethodSchema:
		var a schemaArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		res, err := r.services.Recorder.Schema(ctx, strings.TrimSpace(a.TableName))
		return asResult(res, err)

	case MethodEntities:
		res, err := r.services.Recorder.Entities(ctx)
		return asResult(res, err)

	case MethodStates:
		var a statesArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		res, err := r.services.Recorder.States(ctx, services.StatesFilter{Limit: rowLimit(a.Limit), EntityID: a.EntityID})
		return asResult(res, err)

	case MethodEvents:
		var a eventsArgs
		if err := decodeArgs(args, &a); err != nil {
			return nil, err
		}
		res, err := r.services.Recorder.Events(ctx, services.EventsFilter{Limit: rowLimit(a.Limit), EventType: a.EventType})
		return asResult(res, err)

	case MethodStatus:
		return r.services.Status.Status(), nil
	case MethodInfo:
		return r.services.Status.Info(), nil
	case MethodHealth:
		return r.services.Status.Health(ctx), nil
	case MethodPing:
		return r.services.Status.Ping(), nil
	case MethodWSConnect:
		return r.services.Status.WebSocketInfo(hostFrom(ctx)), nil
	case MethodWSStatus:
		return r.services.Status.WebSocketStatus(), nil
	}

	return nil, models.NewError(models.ErrUnknownMethod, "unknown method: "+method.String())
}

// asResult keeps a nil *T from turning into a non-nil interface value
func asResult[T any](v *T, err error) (interface{}, error) {
	if v == nil {
		return nil, err
	}
	return v, err
}
