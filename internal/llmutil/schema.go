package llmutil

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	// ErrMalformedOutput means no decodable JSON could be recovered from a response.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrSchemaViolation means the JSON decoded but broke the expected schema.
	ErrSchemaViolation = errors.New("model output violates schema")
)

const schemaBaseURL = "https://deskmind.local/schemas/"

// Validator holds one compiled Draft 2020-12 schema. It is immutable after
// construction and safe for concurrent use.
type Validator struct {
	name   string
	schema *jsonschema.Schema
}

// NewValidator compiles schema under name.
func NewValidator(name, schema string) (*Validator, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := schemaBaseURL + name + ".schema.json"
	if err := c.AddResource(url, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("schema %q load failed: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("schema %q compile failed: %w", name, err)
	}
	return &Validator{name: name, schema: compiled}, nil
}

// MustValidator is NewValidator for schemas compiled into the binary.
func MustValidator(name, schema string) *Validator {
	v, err := NewValidator(name, schema)
	if err != nil {
		panic(err)
	}
	return v
}

func (v *Validator) Name() string { return v.name }

// Validate checks an already-decoded JSON value.
func (v *Validator) Validate(value interface{}) error {
	if err := v.schema.Validate(value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchemaViolation, v.name, err)
	}
	return nil
}

// DecodeStrict extracts and repairs the JSON in a model response, validates
// it against v, then decodes it into T. Every failure wraps either
// ErrMalformedOutput or ErrSchemaViolation.
func DecodeStrict[T any](response string, v *Validator) (*T, error) {
	raw, err := RepairJSON(response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	var generic interface{}
	if err := json.Unmarshal([]byte(raw), &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	if err := v.Validate(generic); err != nil {
		return nil, err
	}

	var result T
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return &result, nil
}
