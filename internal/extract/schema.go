package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
)

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// FieldsSchema is the JSON schema of the structured-extract response.
func FieldsSchema() map[string]any {
	props := map[string]any{}
	for _, f := range constants.AsStringSlice() {
		props[f] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           props,
		"required":             constants.AsStringSlice(),
		"additionalProperties": false,
	}
}

func fieldsSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		b, err := json.Marshal(FieldsSchema())
		if err != nil {
			schemaErr = fmt.Errorf("marshal schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("fields.json", bytes.NewReader(b)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("fields.json")
	})
	return compiledSchema, schemaErr
}

// ValidateJSON checks serialized fields against FieldsSchema.
func ValidateJSON(data []byte) error {
	schema, err := fieldsSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

// Validate serializes r and checks it against FieldsSchema.
func (r FieldsResult) Validate() ([]byte, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return b, ValidateJSON(b)
}
