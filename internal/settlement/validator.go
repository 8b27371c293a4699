package settlement

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrValidation marks a request body that failed schema validation. Handlers
// map it to 422.
var ErrValidation = errors.New("request validation failed")

// RequestValidator holds the compiled JSON Schemas for the payment endpoints,
// keyed by request name ("receive_payment", "approve_payment", ...).
type RequestValidator struct {
	schemas map[string]*jsonschema.Schema
}

// NewRequestValidator loads and compiles every *.json schema in schemaDir.
// The ".v1" version suffix in the file name is stripped from the key.
func NewRequestValidator(schemaDir string) (*RequestValidator, error) {
	entries, err := os.ReadDir(schemaDir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir %q: %w", schemaDir, err)
	}
	schemas := make(map[string]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		name = strings.TrimSuffix(name, ".v1")
		path := filepath.Join(schemaDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		// AssertFormat makes "format": "uuid" a hard constraint instead of
		// an annotation.
		compiler := jsonschema.NewCompiler()
		compiler.AssertFormat = true
		id := "https://clockpay.dev/schemas/" + name
		if err := compiler.AddResource(id, strings.NewReader(string(data))); err != nil {
			return nil, fmt.Errorf("add schema %q: %w", name, err)
		}
		schemas[name], err = compiler.Compile(id)
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", name, err)
		}
	}
	if len(schemas) == 0 {
		return nil, fmt.Errorf("no schemas found in %q", schemaDir)
	}
	return &RequestValidator{schemas: schemas}, nil
}

// Validate hard-rejects a request body that does not match the named schema.
func (v *RequestValidator) Validate(name string, body json.RawMessage) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown request schema %q", name)
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}
