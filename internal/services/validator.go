package services

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hive402/backend/internal/models"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

const outputSchemaID = "https://hive402.dev/schemas/task_output.v1.json"

// ErrValidation can be used with errors.Is to detect schema violations.
var ErrValidation = errors.New("validation failed")

// OutputValidator checks submitted task outputs against the TaskOutput
// tagged-union schema.
type OutputValidator struct {
	schema *jsonschema.Schema
}

func NewOutputValidator() (*OutputValidator, error) {
	data, err := schemaFiles.ReadFile("schemas/task_output.v1.json")
	if err != nil {
		return nil, fmt.Errorf("read output schema: %w", err)
	}
	schema, err := jsonschema.CompileString(outputSchemaID, string(data))
	if err != nil {
		return nil, fmt.Errorf("compile output schema: %w", err)
	}
	return &OutputValidator{schema: schema}, nil
}

// Validate returns the decoded output, or an error wrapping ErrValidation.
func (v *OutputValidator) Validate(raw json.RawMessage) (models.TaskOutput, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return models.TaskOutput{}, fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return models.TaskOutput{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	var out models.TaskOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return models.TaskOutput{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return out, nil
}
