// Package validate checks JSON instances against compiled JSON Schemas.
//
// A single evaluator pass always produces the complete diagnostic list; the
// fail-fast entry points only project that list into one error.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/namelens/promptc/internal/promptdef"
)

const schemaResource = "schema.json"

// Diagnostic describes one instance-vs-schema violation.
type Diagnostic struct {
	// Path is a JSON Pointer into the instance; the root is "".
	Path string `json:"path"`
	// Keyword locates the violated constraint inside the schema.
	Keyword string `json:"keyword,omitempty"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("path: %s, error: %s", d.Path, d.Message)
}

// Validator is a compiled schema. It is safe for concurrent use.
type Validator struct {
	schema *jsonschema.Schema
}

// Compile compiles a JSON Schema document (Draft 7).
func Compile(schema []byte) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	if err := compiler.AddResource(schemaResource, bytes.NewReader(schema)); err != nil {
		return nil, promptdef.WrapError(promptdef.KindInvalidSchema, err.Error(), err)
	}
	compiled, err := compiler.Compile(schemaResource)
	if err != nil {
		return nil, promptdef.WrapError(promptdef.KindInvalidSchema, err.Error(), err)
	}
	return &Validator{schema: compiled}, nil
}

// CompileSchema compiles a schema lowered from prompt frontmatter.
func CompileSchema(schema *promptdef.Schema) (*Validator, error) {
	if schema == nil {
		schema = &promptdef.Schema{}
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, promptdef.WrapError(promptdef.KindInvalidSchema, err.Error(), err)
	}
	return Compile(data)
}

// Diagnostics returns every violation of the schema by instance, in evaluator
// order. An empty result means the instance is valid.
func (v *Validator) Diagnostics(instance []byte) ([]Diagnostic, error) {
	doc, err := decodeInstance(instance)
	if err != nil {
		return nil, err
	}
	return v.DiagnosticsValue(doc)
}

// DiagnosticsValue is Diagnostics for an already decoded instance.
func (v *Validator) DiagnosticsValue(doc any) ([]Diagnostic, error) {
	err := v.schema.Validate(doc)
	if err == nil {
		return []Diagnostic{}, nil
	}

	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return nil, promptdef.WrapError(promptdef.KindValidationFailed, err.Error(), err)
	}
	return collect(verr, nil), nil
}

// Validate returns nil when instance conforms, otherwise a ValidationFailed
// error whose message joins every diagnostic.
func (v *Validator) Validate(instance []byte) error {
	diags, err := v.Diagnostics(instance)
	if err != nil {
		return err
	}
	return Join(diags)
}

// Join collapses diagnostics into a single ValidationFailed error, or nil.
func Join(diags []Diagnostic) error {
	if len(diags) == 0 {
		return nil
	}
	parts := make([]string, 0, len(diags))
	for _, d := range diags {
		parts = append(parts, d.String())
	}
	return promptdef.NewError(promptdef.KindValidationFailed, strings.Join(parts, ", "))
}

// JSON validates instance against schema, failing on the first problem.
func JSON(schema, instance []byte) error {
	v, err := Compile(schema)
	if err != nil {
		return err
	}
	return v.Validate(instance)
}

// WithDetails validates instance against schema and returns all diagnostics.
func WithDetails(schema, instance []byte) ([]Diagnostic, error) {
	v, err := Compile(schema)
	if err != nil {
		return nil, err
	}
	return v.Diagnostics(instance)
}

// collect flattens the evaluator's error tree into its leaves.
func collect(verr *jsonschema.ValidationError, out []Diagnostic) []Diagnostic {
	if len(verr.Causes) == 0 {
		return append(out, Diagnostic{
			Path:    verr.InstanceLocation,
			Keyword: verr.KeywordLocation,
			Message: verr.Message,
		})
	}
	for _, cause := range verr.Causes {
		out = collect(cause, out)
	}
	return out
}

func decodeInstance(instance []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(instance))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, promptdef.WrapError(promptdef.KindValidationFailed, "invalid JSON instance: "+err.Error(), err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, promptdef.NewError(promptdef.KindValidationFailed, "invalid JSON instance: trailing data")
	}
	return doc, nil
}
