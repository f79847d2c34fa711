package policy

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidateArguments checks decoded tool-call arguments against a tool's
// registered JSON Schema (Tool.parameters, §3). An empty schema always
// validates. Compilation happens per call — schemas are small and this
// keeps the evaluator stateless, matching the teacher's own
// argument_validation.go, which recompiles on every invocation rather
// than caching a compiled schema per tool id.
func ValidateArguments(schemaJSON string, arguments map[string]any) error {
	if schemaJSON == "" || schemaJSON == "{}" {
		return nil
	}

	var schemaObj any
	if err := json.Unmarshal([]byte(schemaJSON), &schemaObj); err != nil {
		return fmt.Errorf("ValidateArguments: invalid schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaObj); err != nil {
		return fmt.Errorf("ValidateArguments: compile resource: %w", err)
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("ValidateArguments: compile schema: %w", err)
	}

	if err := sch.Validate(arguments); err != nil {
		return fmt.Errorf("ValidateArguments: %w", err)
	}
	return nil
}
