// Package schema validates payloads returned by the reasoning and referee
// services against embedded JSON schemas.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema names.
const (
	GenerateResponse = "generate_response.json"
	Score            = "score.json"
)

//go:embed schemas/*.json
var files embed.FS

var (
	mu       sync.Mutex
	compiled = map[string]*jsonschema.Schema{}
)

func schemaURL(name string) string {
	return (&url.URL{Scheme: "https", Host: "skirmish.local", Path: "/schemas/v1/" + name}).String()
}

// Compile returns the compiled schema for name. Results are memoized.
func Compile(name string) (*jsonschema.Schema, error) {
	mu.Lock()
	defer mu.Unlock()
	if s, ok := compiled[name]; ok {
		return s, nil
	}

	payload, err := files.ReadFile("schemas/" + name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL(name), bytes.NewReader(payload)); err != nil {
		return nil, fmt.Errorf("add schema resource %s: %w", name, err)
	}
	s, err := compiler.Compile(schemaURL(name))
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	compiled[name] = s
	return s, nil
}

// ValidateBytes checks data against the named schema.
func ValidateBytes(name string, data []byte) error {
	s, err := Compile(name)
	if err != nil {
		return err
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("decode json for %s: %w", name, err)
	}
	if err := s.Validate(value); err != nil {
		return fmt.Errorf("validate %s: %w", name, err)
	}
	return nil
}

// Decode validates data against the named schema and unmarshals it into v.
func Decode(name string, data []byte, v any) error {
	if err := ValidateBytes(name, data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}
