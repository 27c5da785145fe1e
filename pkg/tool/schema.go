package tool

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/localrt/llmcore/pkg/llmerr"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// maxSchemaDepth enforces spec §4.2's "arrays/objects up to 3 levels deep"
// limit on both registration paths.
const maxSchemaDepth = 3

// buildSchema derives a tool's JSON-schema-subset document from either
// registration path and validates it against the supported subset.
func buildSchema(t Tool) (map[string]interface{}, error) {
	if t.ParameterSchemaJSON != nil {
		if err := validateSchemaSubset(t.ParameterSchemaJSON, 0); err != nil {
			return nil, err
		}
		return t.ParameterSchemaJSON, nil
	}
	if t.ParameterStruct != nil {
		return reflectSchema(reflect.TypeOf(t.ParameterStruct), 0)
	}
	// A tool with no parameters is legal (spec §4.2 allows an empty object).
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}, nil
}

// reflectSchema walks a Go struct type's exported fields into an "object"
// schema, supporting primitive kinds, string enums via the `tool:"enum=..."`
// tag, and slices/maps/nested structs up to maxSchemaDepth.
func reflectSchema(rt reflect.Type, depth int) (map[string]interface{}, error) {
	if depth > maxSchemaDepth {
		return nil, &llmerr.InvalidTool{Reason: "schema nests deeper than 3 levels"}
	}
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil, &llmerr.InvalidTool{Reason: "ParameterStruct must be a struct (or pointer to one)"}
	}

	properties := map[string]interface{}{}
	var required []string

	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts := fieldTag(f)
		propSchema, err := reflectFieldSchema(f.Type, opts, depth+1)
		if err != nil {
			return nil, err
		}
		properties[name] = propSchema
		if opts.required {
			required = append(required, name)
		}
	}

	out := map[string]interface{}{"type": "object", "properties": properties}
	if len(required) > 0 {
		out["required"] = required
	}
	return out, nil
}

type fieldOpts struct {
	required bool
	enum     []string
}

func fieldTag(f reflect.StructField) (string, fieldOpts) {
	name := f.Name
	var opts fieldOpts
	tag := f.Tag.Get("tool")
	if tag == "" {
		return name, opts
	}
	for _, part := range strings.Split(tag, ",") {
		switch {
		case part == "required":
			opts.required = true
		case strings.HasPrefix(part, "enum="):
			opts.enum = strings.Split(strings.TrimPrefix(part, "enum="), "|")
		case part != "":
			name = part
		}
	}
	return name, opts
}

func reflectFieldSchema(rt reflect.Type, opts fieldOpts, depth int) (map[string]interface{}, error) {
	if depth > maxSchemaDepth {
		return nil, &llmerr.InvalidTool{Reason: "schema nests deeper than 3 levels"}
	}
	for rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	switch rt.Kind() {
	case reflect.String:
		if len(opts.enum) > 0 {
			vals := make([]interface{}, len(opts.enum))
			for i, v := range opts.enum {
				vals[i] = v
			}
			return map[string]interface{}{"type": "string", "enum": vals}, nil
		}
		return map[string]interface{}{"type": "string"}, nil
	case reflect.Bool:
		return map[string]interface{}{"type": "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]interface{}{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]interface{}{"type": "number"}, nil
	case reflect.Slice, reflect.Array:
		items, err := reflectFieldSchema(rt.Elem(), fieldOpts{}, depth+1)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"type": "array", "items": items}, nil
	case reflect.Struct:
		return reflectSchema(rt, depth)
	case reflect.Map:
		if rt.Key().Kind() != reflect.String {
			return nil, &llmerr.InvalidTool{Reason: "map keys must be strings"}
		}
		values, err := reflectFieldSchema(rt.Elem(), fieldOpts{}, depth+1)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"type": "object", "additionalProperties": values}, nil
	default:
		return nil, &llmerr.InvalidTool{Reason: "unsupported field kind " + rt.Kind().String()}
	}
}

// validateSchemaSubset rejects caller-supplied schemas that reach outside
// the supported subset (spec §4.2): every non-leaf "type" must be string,
// integer, number, boolean, array, or object, nested no deeper than
// maxSchemaDepth.
func validateSchemaSubset(doc map[string]interface{}, depth int) error {
	if depth > maxSchemaDepth {
		return &llmerr.InvalidTool{Reason: "schema nests deeper than 3 levels"}
	}
	t, _ := doc["type"].(string)
	switch t {
	case "string", "integer", "number", "boolean":
		return nil
	case "array":
		items, ok := doc["items"].(map[string]interface{})
		if !ok {
			return &llmerr.InvalidTool{Reason: "array schema missing \"items\""}
		}
		return validateSchemaSubset(items, depth+1)
	case "object":
		if props, ok := doc["properties"].(map[string]interface{}); ok {
			for _, v := range props {
				child, ok := v.(map[string]interface{})
				if !ok {
					return &llmerr.InvalidTool{Reason: "object property schema must itself be an object"}
				}
				if err := validateSchemaSubset(child, depth+1); err != nil {
					return err
				}
			}
		}
		if ap, ok := doc["additionalProperties"].(map[string]interface{}); ok {
			return validateSchemaSubset(ap, depth+1)
		}
		return nil
	default:
		return &llmerr.InvalidTool{Reason: "unsupported schema type " + t}
	}
}

// compileValidator compiles doc into a jsonschema.Schema that ValidateArguments
// can run tool-call arguments through. Uses an in-memory resource rather
// than a URL, since these schemas never live on disk.
func compileValidator(name string, doc map[string]interface{}) (*jsonschema.Schema, error) {
	url := "mem://tool/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, &llmerr.InvalidTool{ToolName: name, Reason: "compiling schema: " + err.Error()}
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, &llmerr.InvalidTool{ToolName: name, Reason: "compiling schema: " + err.Error()}
	}
	return sch, nil
}

func marshalSchema(doc map[string]interface{}) string {
	b, err := json.Marshal(doc)
	if err != nil {
		return "{}"
	}
	return string(b)
}
