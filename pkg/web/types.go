// Package web provides the HTTP handlers for the pipeline job API.
package web

// SubmitJobRequest is the request body for submitting a pipeline run.
// Config is the opaque per-run configuration validated against the job
// config schema.
type SubmitJobRequest struct {
	TriggerSource string         `json:"trigger_source,omitempty" validate:"omitempty,oneof=manual scheduled"`
	Config        map[string]any `json:"config,omitempty"`
}
