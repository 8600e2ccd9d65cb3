package bridge

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/blogem/ha-gateway/models"
	"github.com/blogem/ha-gateway/services"
)

type queryArgs struct {
	Query  string        `json:"query"`
	Params []interface{} `json:"params"`
}

type schemaArgs struct {
	TableName string `json:"table_name"`
}

type statesArgs struct {
	Limit    *int   `json:"limit"`
	EntityID string `json:"entity_id"`
}

type eventsArgs struct {
	Limit     *int   `json:"limit"`
	EventType string `json:"event_type"`
}

// appendArgs uses pointers so absent flags keep their defaults.
// reload_core is the name the historical clients send for reload.
type appendArgs struct {
	Lines      []string `json:"lines"`
	Validate   *bool    `json:"validate"`
	Reload     *bool    `json:"reload"`
	ReloadCore *bool    `json:"reload_core"`
	Backup     *bool    `json:"backup"`
}

func (a appendArgs) request() models.AppendLinesRequest {
	req := models.NewAppendLinesRequest()
	req.Lines = a.Lines
	setFlag(&req.ValidateConfig, a.Validate)
	setFlag(&req.ReloadConfig, a.ReloadCore)
	setFlag(&req.ReloadConfig, a.Reload)
	setFlag(&req.Backup, a.Backup)
	return req
}

// insertArgs accepts yaml as the historical name of content
type insertArgs struct {
	RelativeDir string  `json:"relative_dir"`
	Filename    string  `json:"filename"`
	Content     *string `json:"content"`
	YAML        *string `json:"yaml"`
	Validate    *bool   `json:"validate"`
	Reload      *bool   `json:"reload"`
	ReloadCore  *bool   `json:"reload_core"`
	Overwrite   *bool   `json:"overwrite"`
}

func (a insertArgs) request() models.InsertFileRequest {
	req := models.NewInsertFileRequest()
	req.RelativeDir = a.RelativeDir
	req.Filename = a.Filename
	req.Content = a.Content
	if req.Content == nil {
		req.Content = a.YAML
	}
	setFlag(&req.ValidateConfig, a.Validate)
	setFlag(&req.ReloadConfig, a.ReloadCore)
	setFlag(&req.ReloadConfig, a.Reload)
	setFlag(&req.Overwrite, a.Overwrite)
	return req
}

func setFlag(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

// decodeArgs maps the loosely typed argument bundle onto dst
func decodeArgs(args map[string]interface{}, dst interface{}) error {
	if len(args) == 0 {
		return nil
	}

	raw, err := json.Marshal(args)
	if err != nil {
		return models.WrapError(models.ErrInvalidRequest, "invalid arguments", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return models.WrapError(models.ErrInvalidRequest, "invalid arguments", err)
	}
	return nil
}

// scalarParams checks that every parameter is a scalar the driver can bind.
// JSON numbers become int64 when they are integral and float64 otherwise.
func scalarParams(params []interface{}) ([]interface{}, error) {
	out := make([]interface{}, len(params))
	for i, p := range params {
		switch v := p.(type) {
		case nil, bool, string, int, int64, float64:
			out[i] = v
		case json.Number:
			if n, err := v.Int64(); err == nil {
				out[i] = n
			} else if f, err := v.Float64(); err == nil {
				out[i] = f
			} else {
				return nil, models.NewError(models.ErrInvalidRequest, fmt.Sprintf("params[%d] is not a valid number", i))
			}
		default:
			return nil, models.NewError(models.ErrInvalidRequest,
				fmt.Sprintf("params[%d] must be a string, number, boolean or null", i))
		}
	}
	return out, nil
}

// rowLimit applies the default when the client sent no limit
func rowLimit(limit *int) int {
	if limit == nil {
		return services.DefaultRowLimit
	}
	return *limit
}
