package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/invopop/jsonschema"
)

type floatAnswer struct {
	Value float64 `json:"value" jsonschema:"required,description=The numeric answer"`
}

type boolAnswer struct {
	Value bool `json:"value" jsonschema:"required,description=The yes/no answer"`
}

var (
	floatSchema = generateSchema[floatAnswer]()
	boolSchema  = generateSchema[boolAnswer]()
)

func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	obj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureStrict(obj)
	return obj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// ensureStrict makes every object closed and every property required, as
// strict structured output demands.
func ensureStrict(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if m, ok := p.(map[string]any); ok {
				ensureStrict(m)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		ensureStrict(items)
	}
}

// decodeModelJSON unmarshals a model reply, tolerating text around the object.
func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}
	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}
	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("unmarshal extracted JSON (len=%d): %w", len(sub), err)
	}
	return nil
}
