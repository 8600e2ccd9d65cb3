package models

import (
	"path/filepath"
	"strings"
)

// AppendLinesRequest appends lines to the main configuration file
type AppendLinesRequest struct {
	Lines          []string `json:"lines" validate:"required,min=1"`
	ValidateConfig bool     `json:"validate"`
	ReloadConfig   bool     `json:"reload"`
	Backup         bool     `json:"backup"`
}

// NewAppendLinesRequest returns a request with validate, reload and backup enabled
func NewAppendLinesRequest() AppendLinesRequest {
	return AppendLinesRequest{ValidateConfig: true, ReloadConfig: true, Backup: true}
}

// Validate validates the append request
func (r *AppendLinesRequest) Validate() []string {
	validationErrors := validateStruct(r)
	if validationErrors.HasErrors() {
		return validationErrors.GetMessages()
	}
	var errors []string

	for i, line := range r.Lines {
		if strings.ContainsAny(line, "\r\n") {
			errors = append(errors, "lines["+itoa(i)+"] must not contain line breaks")
		}
	}

	return errors
}

// InsertFileRequest writes a new include file under the configuration root
type InsertFileRequest struct {
	RelativeDir    string  `json:"relative_dir" validate:"required"`
	Filename       string  `json:"filename" validate:"required"`
	Content        *string `json:"content" validate:"required"`
	ValidateConfig bool    `json:"validate"`
	ReloadConfig   bool    `json:"reload"`
	Overwrite      bool    `json:"overwrite"`
}

// NewInsertFileRequest returns a request with validate and reload enabled and overwrite disabled
func NewInsertFileRequest() InsertFileRequest {
	return InsertFileRequest{ValidateConfig: true, ReloadConfig: true}
}

// Validate validates the insert request. Path containment is checked by the filesystem layer.
func (r *InsertFileRequest) Validate() []string {
	r.RelativeDir = strings.TrimSpace(r.RelativeDir)
	r.Filename = strings.TrimSpace(r.Filename)

	validationErrors := validateStruct(r)
	if validationErrors.HasErrors() {
		return validationErrors.GetMessages()
	}
	var errors []string

	if r.Filename == "." || r.Filename == ".." || strings.HasSuffix(r.Filename, string(filepath.Separator)) {
		errors = append(errors, "filename must name a file")
	}

	return errors
}

// ContentString returns the content, or "" when it was not supplied
func (r *InsertFileRequest) ContentString() string {
	if r.Content == nil {
		return ""
	}
	return *r.Content
}

// MutationResult reports how far a configuration mutation got
type MutationResult struct {
	Committed  bool   `json:"committed"`
	Validated  bool   `json:"validated"`
	Reloaded   bool   `json:"reloaded"`
	RolledBack bool   `json:"rolled_back"`
	Path       string `json:"path"`
	BackupPath string `json:"backup_path,omitempty"`
	Error      string `json:"error,omitempty"`
}
