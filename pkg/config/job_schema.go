package config

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// jobConfigSchema constrains the opaque per-job configuration map.
// Unknown keys are rejected so a typo in a flag name fails loudly at
// submission instead of silently running with defaults.
var jobConfigSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"run_evaluation":   map[string]any{"type": "boolean"},
		"run_optimization": map[string]any{"type": "boolean"},
		"validate_links":   map[string]any{"type": "boolean"},
		"force_digest":     map[string]any{"type": "boolean"},
		"auto_apply":       map[string]any{"type": "boolean"},
		"stage_timeout_seconds": map[string]any{
			"type":    "integer",
			"minimum": 1,
		},
		"ingest_workers":     workerCountSchema(),
		"classify_workers":   workerCountSchema(),
		"neutralize_workers": workerCountSchema(),
		"quality_workers":    workerCountSchema(),
		"link_workers":       workerCountSchema(),
	},
}

func workerCountSchema() map[string]any {
	return map[string]any{
		"type":    "integer",
		"minimum": 1,
		"maximum": 64,
	}
}

// ValidateJobConfig checks a job configuration map against the schema.
// A nil map is valid; every flag has a default.
func ValidateJobConfig(jobConfig map[string]any) error {
	if jobConfig == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(jobConfigSchema)
	dataLoader := gojsonschema.NewGoLoader(jobConfig)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return fmt.Errorf("invalid job configuration: %s", strings.Join(descriptions, "; "))
	}

	return nil
}
