// Package render compiles prompt body templates and renders them against a
// JSON context.
//
// The grammar is Jinja: {{ name }} substitutions, dotted access,
// {% if %} / {% for %} blocks, filters with arguments, is-tests and the ~
// operator. Output is not escaped. Undefined variables and JSON null render
// as empty strings.
package render

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/flosch/pongo2/v6"

	"github.com/namelens/promptc/internal/promptdef"
)

func init() {
	pongo2.SetAutoescape(false)
	registerFilters()
}

// Template is a compiled template. It is safe for concurrent use.
type Template struct {
	source   string
	compiled *pongo2.Template
}

// Compile parses a template string.
func Compile(source string) (*Template, error) {
	translated, err := translate(source)
	if err != nil {
		return nil, err
	}
	compiled, err := pongo2.FromString(translated)
	if err != nil {
		return nil, templateError(err)
	}
	return &Template{source: source, compiled: compiled}, nil
}

// Source returns the template text.
func (t *Template) Source() string { return t.source }

// Render substitutes ctx into the template. Keys that are not identifiers
// cannot be named by a template and are left out.
func (t *Template) Render(ctx map[string]any) (string, error) {
	out, err := t.compiled.Execute(executionContext(ctx))
	if err != nil {
		return "", templateError(err)
	}
	return out, nil
}

// RenderJSON renders with a context given as a JSON object.
func (t *Template) RenderJSON(data []byte) (string, error) {
	ctx, err := DecodeContext(data)
	if err != nil {
		return "", err
	}
	return t.Render(ctx)
}

// Execute compiles and renders template in one step.
func Execute(template string, ctx map[string]any) (string, error) {
	t, err := Compile(template)
	if err != nil {
		return "", err
	}
	return t.Render(ctx)
}

// String renders template against plain string variables.
func String(template string, vars map[string]string) (string, error) {
	ctx := make(map[string]any, len(vars))
	for k, v := range vars {
		ctx[k] = v
	}
	return Execute(template, ctx)
}

// DecodeContext parses a JSON object into a render context. An empty input
// is an empty context.
func DecodeContext(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]any{}, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, promptdef.WrapError(promptdef.KindTemplateCompile, "invalid template context: "+err.Error(), err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, promptdef.NewError(promptdef.KindTemplateCompile, "invalid template context: trailing data")
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, promptdef.NewError(promptdef.KindTemplateCompile, "template context must be a JSON object")
	}
	return normalize(obj).(map[string]any), nil
}

// normalize replaces json.Number with int64 when the literal has no
// fraction or exponent and float64 otherwise, so 2 prints as 2 and 2.0 as
// 2.0.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalize(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalize(item)
		}
		return val
	case json.Number:
		if !strings.ContainsAny(val.String(), ".eE") {
			if n, err := val.Int64(); err == nil {
				return n
			}
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return val
	}
}

func executionContext(ctx map[string]any) pongo2.Context {
	out := make(pongo2.Context, len(ctx)+len(helpers))
	for k, v := range ctx {
		if isIdentifier(k) && !strings.HasPrefix(k, helperPrefix) {
			out[k] = v
		}
	}
	for k, fn := range helpers {
		out[k] = fn
	}
	return out
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if c := s[i]; c != '_' && !isLetter(c) && (i == 0 || !isDigit(c)) {
			return false
		}
	}
	return true
}

func templateError(err error) error {
	return promptdef.WrapError(promptdef.KindTemplateCompile, err.Error(), err)
}
