package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/blogem/ha-gateway/authenticator"
	"github.com/blogem/ha-gateway/models"
)

// RequireAPIKey rejects requests without a valid bearer token when the provider is enabled
func RequireAPIKey(provider authenticator.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if provider.Enabled() && !provider.Verify(authenticator.BearerToken(r)) {
				w.Header().Set("WWW-Authenticate", `Bearer realm="ha-gateway"`)
				writeError(w, r, http.StatusUnauthorized, models.NewError(models.ErrUnauthorized, "invalid or missing API key"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireExternalAccess rejects every request when external access is switched off
func RequireExternalAccess(enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				writeError(w, r, http.StatusForbidden, models.NewError(models.ErrForbidden, "external access is disabled"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	env := models.NewErrorEnvelope(r.URL.Path, err, nil, time.Now())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
