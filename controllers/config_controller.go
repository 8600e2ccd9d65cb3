package controllers

import (
	"net/http"
)

// ConfigController handles the configuration mutation shortcuts
type ConfigController struct {
	dispatcher *dispatcher
}

// NewConfigController creates a new config controller
func NewConfigController(dispatcher *dispatcher) *ConfigController {
	return &ConfigController{
		dispatcher: dispatcher,
	}
}

// AppendLines handles POST /ha_config/append_lines
func (c *ConfigController) AppendLines(w http.ResponseWriter, r *http.Request) {
	c.mutate(w, r, "config/append_lines")
}

// Insert handles POST /ha_config/insert
func (c *ConfigController) Insert(w http.ResponseWriter, r *http.Request) {
	c.mutate(w, r, "config/insert_file")
}

func (c *ConfigController) mutate(w http.ResponseWriter, r *http.Request, method string) {
	body, err := decodeBody(r)
	if err != nil {
		c.dispatcher.fail(w, method, err)
		return
	}
	c.dispatcher.serve(w, r, method, body)
}
