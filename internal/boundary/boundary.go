// Package boundary hands compiled artifacts across a runtime boundary as
// opaque handles.
//
// Every successful call allocates one record in a Table and returns its
// handle. The caller owns the record until it calls Release exactly once.
// Records are flattened: strings, JSON text and explicit-length arrays only.
package boundary

import (
	"encoding/json"
	"errors"
	"sync"
	"unicode/utf8"

	"github.com/namelens/promptc/internal/promptdef"
	"github.com/namelens/promptc/internal/render"
	"github.com/namelens/promptc/internal/validate"
)

// Handle identifies a record in a Table. Zero is never allocated.
type Handle uint64

var (
	// ErrUnknownHandle is returned for handles that were never allocated or
	// were already released.
	ErrUnknownHandle = errors.New("unknown or released handle")
	// ErrWrongRecord is returned when a handle refers to a different record type.
	ErrWrongRecord = errors.New("handle refers to a different record type")
)

// ErrorRecord is the flattened error returned in place of a handle.
type ErrorRecord struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Release drops the record. It is safe on nil.
func (e *ErrorRecord) Release() {
	if e == nil {
		return
	}
	e.Kind = ""
	e.Message = ""
}

// DefinitionRecord is a compiled prompt definition in flattened form.
type DefinitionRecord struct {
	Name         string
	Client       string
	PromptType   string
	InputsSchema string
	OutputSchema string
	Tools        []string
	ToolsLen     int
	MaxTurns     uint32
	BodyTemplate string
	Extends      string
	HasExtends   bool
}

// DiagnosticsRecord is a validation result in flattened form.
type DiagnosticsRecord struct {
	Items []validate.Diagnostic
	Len   int
}

// Table owns every record allocated across the boundary.
type Table struct {
	mu      sync.Mutex
	next    Handle
	records map[Handle]any
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{records: make(map[Handle]any)}
}

// Live returns the number of unreleased records.
func (t *Table) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

func (t *Table) put(record any) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	t.records[t.next] = record
	return t.next
}

func (t *Table) get(h Handle) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	record, ok := t.records[h]
	if !ok {
		return nil, ErrUnknownHandle
	}
	return record, nil
}

// Release frees the record behind h. Releasing zero is a no-op.
func (t *Table) Release(h Handle) error {
	if h == 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[h]; !ok {
		return ErrUnknownHandle
	}
	delete(t.records, h)
	return nil
}

// ParsePrompt compiles a prompt document.
func (t *Table) ParsePrompt(content []byte) (Handle, *ErrorRecord) {
	if !utf8.Valid(content) {
		return 0, utf8Error("prompt content is not valid UTF-8")
	}
	def, err := promptdef.Parse(string(content))
	if err != nil {
		return 0, errorRecord(err)
	}
	record, err := flatten(def)
	if err != nil {
		return 0, errorRecord(err)
	}
	return t.put(record), nil
}

// RenderTemplate renders template against a JSON object context.
func (t *Table) RenderTemplate(template, inputsJSON []byte) (Handle, *ErrorRecord) {
	if !utf8.Valid(template) {
		return 0, utf8Error("template is not valid UTF-8")
	}
	if !utf8.Valid(inputsJSON) {
		return 0, utf8Error("inputs are not valid UTF-8")
	}
	tpl, err := render.Compile(string(template))
	if err != nil {
		return 0, errorRecord(err)
	}
	out, err := tpl.RenderJSON(inputsJSON)
	if err != nil {
		return 0, errorRecord(err)
	}
	return t.put(out), nil
}

// ValidateWithDetails validates instanceJSON against schemaJSON and returns
// every diagnostic. A valid instance yields an empty record.
func (t *Table) ValidateWithDetails(schemaJSON, instanceJSON []byte) (Handle, *ErrorRecord) {
	if !utf8.Valid(schemaJSON) || !utf8.Valid(instanceJSON) {
		return 0, utf8Error("schema or instance is not valid UTF-8")
	}
	diags, err := validate.WithDetails(schemaJSON, instanceJSON)
	if err != nil {
		return 0, errorRecord(err)
	}
	return t.put(&DiagnosticsRecord{Items: diags, Len: len(diags)}), nil
}

// Definition borrows a definition record. The pointer is valid until release.
func (t *Table) Definition(h Handle) (*DefinitionRecord, error) {
	record, err := t.get(h)
	if err != nil {
		return nil, err
	}
	def, ok := record.(*DefinitionRecord)
	if !ok {
		return nil, ErrWrongRecord
	}
	return def, nil
}

// String borrows a rendered string record.
func (t *Table) String(h Handle) (string, error) {
	record, err := t.get(h)
	if err != nil {
		return "", err
	}
	s, ok := record.(string)
	if !ok {
		return "", ErrWrongRecord
	}
	return s, nil
}

// Diagnostics borrows a diagnostics record.
func (t *Table) Diagnostics(h Handle) (*DiagnosticsRecord, error) {
	record, err := t.get(h)
	if err != nil {
		return nil, err
	}
	diags, ok := record.(*DiagnosticsRecord)
	if !ok {
		return nil, ErrWrongRecord
	}
	return diags, nil
}

func flatten(def *promptdef.Definition) (*DefinitionRecord, error) {
	inputs, err := json.Marshal(def.InputsSchema())
	if err != nil {
		return nil, err
	}
	output, err := json.Marshal(def.OutputSchema())
	if err != nil {
		return nil, err
	}
	tools := def.Tools()
	parent, hasParent := def.Extends()
	return &DefinitionRecord{
		Name:         def.Name(),
		Client:       def.Client(),
		PromptType:   def.Type(),
		InputsSchema: string(inputs),
		OutputSchema: string(output),
		Tools:        tools,
		ToolsLen:     len(tools),
		MaxTurns:     def.MaxTurns(),
		BodyTemplate: def.BodyTemplate(),
		Extends:      parent,
		HasExtends:   hasParent,
	}, nil
}

func errorRecord(err error) *ErrorRecord {
	return &ErrorRecord{Kind: promptdef.KindOf(err).String(), Message: err.Error()}
}

func utf8Error(msg string) *ErrorRecord {
	return errorRecord(promptdef.NewError(promptdef.KindUtf8, msg))
}
