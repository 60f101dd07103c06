package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed batch.schema.json
var batchSchemaJSON string

var (
	batchSchemaOnce sync.Once
	batchSchema     *jsonschema.Schema
	batchSchemaErr  error
)

func compiledBatchSchema() (*jsonschema.Schema, error) {
	batchSchemaOnce.Do(func() {
		batchSchema, batchSchemaErr = jsonschema.CompileString("batch.schema.json", batchSchemaJSON)
	})
	return batchSchema, batchSchemaErr
}

// ValidateBatch checks a YAML (or JSON) tuning document against the batch
// schema. An empty document is valid.
func ValidateBatch(doc []byte) error {
	var v any
	if err := yaml.Unmarshal(doc, &v); err != nil {
		return err
	}
	if v == nil {
		return nil
	}

	// Round-trip through JSON so the validator sees JSON types only.
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("config: tuning is not representable as JSON: %w", err)
	}
	var inst any
	if err := json.Unmarshal(b, &inst); err != nil {
		return err
	}

	s, err := compiledBatchSchema()
	if err != nil {
		return fmt.Errorf("config: compile schema: %w", err)
	}
	if err := s.Validate(inst); err != nil {
		return fmt.Errorf("config: invalid tuning: %w", err)
	}
	return nil
}
