package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Part is one piece of request content: either inline text or a media
// reference by URI (used for YouTube links).
type Part struct {
	Text    string
	FileURI string
}

// SchemaType mirrors the JSON types structured output can require.
type SchemaType string

const (
	TypeObject SchemaType = "object"
	TypeArray  SchemaType = "array"
	TypeString SchemaType = "string"
	TypeNumber SchemaType = "number"
)

// Schema describes the JSON shape the model must return. Providers with
// native structured output translate it (Gemini); the rest get it rendered
// into the prompt.
type Schema struct {
	Type        SchemaType
	Description string
	Properties  map[string]*Schema
	Required    []string
	Items       *Schema
}

// Request is a single structured-generation call.
type Request struct {
	System      string
	Parts       []Part
	Schema      *Schema
	Temperature float32
}

// Client generates JSON text conforming to the request schema.
type Client interface {
	GenerateJSON(ctx context.Context, req Request) (string, error)
	Close() error
}

func textOfParts(parts []Part) (string, error) {
	var b strings.Builder
	for _, p := range parts {
		if p.FileURI != "" {
			return "", fmt.Errorf("media parts require the gemini provider")
		}
		b.WriteString(p.Text)
	}
	return b.String(), nil
}

// renderSchema produces a JSON-Schema-ish description for providers without
// native structured output support.
func renderSchema(s *Schema) string {
	data, err := json.MarshalIndent(schemaToMap(s), "", "  ")
	if err != nil {
		return ""
	}
	return string(data)
}

func schemaToMap(s *Schema) map[string]interface{} {
	if s == nil {
		return nil
	}
	m := map[string]interface{}{"type": string(s.Type)}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if len(s.Properties) > 0 {
		props := make(map[string]interface{}, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = schemaToMap(prop)
		}
		m["properties"] = props
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	if s.Items != nil {
		m["items"] = schemaToMap(s.Items)
	}
	return m
}
