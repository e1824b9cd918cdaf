// Package schema generates JSON schemas from Go types via reflection.
// It is used by tool/function to describe tool inputs and outputs.
package schema

import (
	"reflect"
	"strings"

	"github.com/winhok/QAchatBot-sub001/tool"
)

// Generate builds a JSON schema for the given Go type.
func Generate(t reflect.Type) *tool.Schema {
	if t == nil {
		return &tool.Schema{Type: "object"}
	}
	seen := make(map[reflect.Type]bool)
	return generate(t, seen)
}

func generate(t reflect.Type, seen map[reflect.Type]bool) *tool.Schema {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Bool:
		return &tool.Schema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &tool.Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &tool.Schema{Type: "number"}
	case reflect.String:
		return &tool.Schema{Type: "string"}
	case reflect.Slice, reflect.Array:
		return &tool.Schema{Type: "array", Items: generate(t.Elem(), seen)}
	case reflect.Map:
		return &tool.Schema{Type: "object", AdditionalProperties: generate(t.Elem(), seen)}
	case reflect.Struct:
		// Break recursion on self-referential types.
		if seen[t] {
			return &tool.Schema{Type: "object"}
		}
		seen[t] = true
		defer delete(seen, t)
		return generateStruct(t, seen)
	default:
		return &tool.Schema{Type: "object"}
	}
}

func generateStruct(t reflect.Type, seen map[reflect.Type]bool) *tool.Schema {
	s := &tool.Schema{
		Type:       "object",
		Properties: make(map[string]*tool.Schema),
	}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, omitempty, skip := parseJSONTag(field)
		if skip {
			continue
		}
		prop := generate(field.Type, seen)
		if desc := field.Tag.Get("description"); desc != "" {
			prop.Description = desc
		}
		s.Properties[name] = prop
		if !omitempty {
			s.Required = append(s.Required, name)
		}
	}
	return s
}

func parseJSONTag(field reflect.StructField) (name string, omitempty, skip bool) {
	name = field.Name
	tag := field.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	if tag == "" {
		return name, false, false
	}
	parts := strings.Split(tag, ",")
	if parts[0] != "" {
		name = parts[0]
	}
	for _, p := range parts[1:] {
		if p == "omitempty" {
			omitempty = true
		}
	}
	return name, omitempty, false
}
