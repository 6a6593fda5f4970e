package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// argParser turns tools run arguments into the map a tool would receive over MCP.
// Accepted forms: --key=value, --key value, a bare --flag for booleans, and JSON objects.
// Flags take precedence over keys from JSON objects regardless of order.
type argParser struct {
	types  map[string]string // parameter -> JSON Schema type
	params map[string]string // flag name -> parameter
}

func newArgParser(def mcp.Tool) *argParser {
	p := &argParser{
		types:  make(map[string]string, len(def.InputSchema.Properties)),
		params: make(map[string]string, len(def.InputSchema.Properties)),
	}
	for name, prop := range def.InputSchema.Properties {
		if schema, ok := prop.(map[string]any); ok {
			p.types[name], _ = schema["type"].(string)
		}
		p.params[toFlagName(name)] = name
	}
	return p
}

func (p *argParser) parse(args []string) (map[string]any, error) {
	flags := make(map[string]any)
	merged := make(map[string]any)

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case strings.HasPrefix(arg, "{"):
			var obj map[string]any
			if err := json.Unmarshal([]byte(arg), &obj); err != nil {
				return nil, fmt.Errorf("invalid JSON argument: %w", err)
			}
			for k, v := range obj {
				merged[k] = v
			}

		case strings.HasPrefix(arg, "--"):
			name, raw, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
			param := p.param(name)
			if !hasValue {
				if p.types[param] == "boolean" {
					flags[param] = true
					continue
				}
				if i+1 >= len(args) {
					return nil, fmt.Errorf("flag --%s requires a value", name)
				}
				i++
				raw = args[i]
			}
			flags[param] = coerce(raw, p.types[param])

		default:
			return nil, fmt.Errorf("unexpected argument: %s (use --key=value flags or pass a JSON object)", arg)
		}
	}

	for k, v := range flags {
		merged[k] = v
	}
	return merged, nil
}

// param maps a flag to its parameter, falling back to snake_case for names not in the schema
func (p *argParser) param(flag string) string {
	if name, ok := p.params[flag]; ok {
		return name
	}
	return strings.ReplaceAll(flag, "-", "_")
}

// coerce converts a flag value into the type JSON decoding would have produced.
// Values that do not fit the schema type are passed through as strings for the tool to reject.
func coerce(raw, schemaType string) any {
	switch schemaType {
	case "number", "integer":
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return f
		}
	case "boolean":
		switch strings.ToLower(raw) {
		case "yes":
			return true
		case "no":
			return false
		}
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	case "array":
		var list []any
		if json.Unmarshal([]byte(raw), &list) == nil {
			return list
		}
		items := make([]any, 0)
		for item := range strings.SplitSeq(raw, ",") {
			items = append(items, strings.TrimSpace(item))
		}
		return items
	case "object":
		var obj map[string]any
		if json.Unmarshal([]byte(raw), &obj) == nil {
			return obj
		}
	}
	return raw
}
