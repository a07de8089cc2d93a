package probetype

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// mustSchema compiles an OpenAPI schema literal. Built-in type schemas are
// package constants, so a bad one is a programming error.
func mustSchema(schemaJSON string) *openapi3.Schema {
	schema, err := buildSchema(schemaJSON)
	if err != nil {
		panic(err)
	}
	return schema
}

func buildSchema(schemaJSON string) (*openapi3.Schema, error) {
	var schema openapi3.Schema
	if err := json.Unmarshal([]byte(schemaJSON), &schema); err != nil {
		return nil, fmt.Errorf("config schema unmarshalling: %w", err)
	}
	if err := schema.Validate(context.TODO()); err != nil {
		return nil, fmt.Errorf("config schema validation: %w", err)
	}
	return &schema, nil
}

// validateAgainst checks a probe config against a compiled schema. The config
// is round-tripped through JSON first so numbers arrive as float64 no matter
// how the map was built.
func validateAgainst(schema *openapi3.Schema, config map[string]interface{}) error {
	if config == nil {
		config = map[string]interface{}{}
	}
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("config marshalling: %w", err)
	}
	var normalized interface{}
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return fmt.Errorf("config unmarshalling: %w", err)
	}
	return schema.VisitJSON(normalized)
}

// intOption reads an integer config value, tolerating the float64 form JSON
// decoding produces. Schema validation runs first, so a missing optional key
// falls back to def and anything else is already known to be integral.
func intOption(config map[string]interface{}, key string, def int) int {
	v, ok := config[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return def
		}
		return int(i)
	default:
		return def
	}
}

func stringOption(config map[string]interface{}, key string) string {
	s, _ := config[key].(string)
	return s
}
