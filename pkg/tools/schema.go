package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
	jsvalidate "github.com/santhosh-tekuri/jsonschema/v5"
)

// DeriveSchema reflects a JSON schema for a tool's argument struct.
// The result is a plain object schema suitable for provider tool
// definitions.
func DeriveSchema(args any) map[string]any {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(args)

	raw, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// ValidateArgs checks raw JSON arguments against a tool's schema
// before execution.
func ValidateArgs(schema map[string]any, args json.RawMessage) error {
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("invalid tool schema: %w", err)
	}

	compiler := jsvalidate.NewCompiler()
	if err := compiler.AddResource("args.json", bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("invalid tool schema: %w", err)
	}
	compiled, err := compiler.Compile("args.json")
	if err != nil {
		return fmt.Errorf("invalid tool schema: %w", err)
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	var value any
	if err := json.Unmarshal(args, &value); err != nil {
		return fmt.Errorf("tool arguments are not valid JSON: %w", err)
	}
	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("tool arguments do not match schema: %w", err)
	}
	return nil
}
