package promptdef

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

// Defaults applied when the frontmatter omits a field.
const (
	DefaultClient   = "anthropic/claude-sonnet"
	DefaultType     = "llm"
	DefaultMaxTurns = uint32(10)
)

// Definition is a compiled prompt document. It is never modified after Parse
// returns; accessors hand out copies.
type Definition struct {
	name         string
	client       string
	promptType   string
	inputsSchema *Schema
	outputSchema *Schema
	tools        []string
	maxTurns     uint32
	body         string
	extends      string
}

func (d *Definition) Name() string { return d.name }
func (d *Definition) Client() string { return d.client }
func (d *Definition) Type() string { return d.promptType }
func (d *Definition) MaxTurns() uint32 { return d.maxTurns }
func (d *Definition) BodyTemplate() string { return d.body }

// Extends returns the parent definition name and whether one was declared.
func (d *Definition) Extends() (string, bool) {
	return d.extends, d.extends != ""
}

// Tools returns a copy of the declared tool names.
func (d *Definition) Tools() []string {
	return append([]string{}, d.tools...)
}

// InputsSchema returns a copy of the compiled inputs schema.
func (d *Definition) InputsSchema() *Schema {
	return d.inputsSchema.Clone()
}

// OutputSchema returns a copy of the compiled output schema.
func (d *Definition) OutputSchema() *Schema {
	return d.outputSchema.Clone()
}

type definitionJSON struct {
	Name         string   `json:"name"`
	Client       string   `json:"client"`
	Type         string   `json:"prompt_type"`
	InputsSchema *Schema  `json:"inputs_schema"`
	OutputSchema *Schema  `json:"output_schema"`
	Tools        []string `json:"tools"`
	MaxTurns     uint32   `json:"max_turns"`
	BodyTemplate string   `json:"body_template"`
	Extends      *string  `json:"extends"`
}

// MarshalJSON encodes the definition with its schemas inlined.
func (d *Definition) MarshalJSON() ([]byte, error) {
	out := definitionJSON{
		Name:         d.name,
		Client:       d.client,
		Type:         d.promptType,
		InputsSchema: d.inputsSchema,
		OutputSchema: d.outputSchema,
		Tools:        d.tools,
		MaxTurns:     d.maxTurns,
		BodyTemplate: d.body,
	}
	if out.Tools == nil {
		out.Tools = []string{}
	}
	if d.extends != "" {
		extends := d.extends
		out.Extends = &extends
	}
	return json.Marshal(out)
}

type frontmatter struct {
	Name     string    `yaml:"name"`
	Client   *string   `yaml:"client"`
	Type     *string   `yaml:"type"`
	Inputs   yaml.Node `yaml:"inputs"`
	Output   yaml.Node `yaml:"output"`
	Tools    []string  `yaml:"tools"`
	MaxTurns *uint32   `yaml:"max_turns"`
	Extends  *string   `yaml:"extends"`
}

// Parse compiles a prompt document held in memory.
func Parse(content string) (*Definition, error) {
	raw, body, err := SplitFrontmatter(content)
	if err != nil {
		return nil, err
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(raw), &fm); err != nil {
		return nil, yamlError(err)
	}

	if fm.Name == "" {
		return nil, &Error{Kind: KindMissingField, Field: "name"}
	}

	inputs, err := ParseSchema(&fm.Inputs)
	if err != nil {
		return nil, err
	}
	output, err := ParseSchema(&fm.Output)
	if err != nil {
		return nil, err
	}

	def := &Definition{
		name:         fm.Name,
		client:       DefaultClient,
		promptType:   DefaultType,
		inputsSchema: inputs,
		outputSchema: output,
		tools:        []string{},
		maxTurns:     DefaultMaxTurns,
		body:         body,
	}
	if fm.Client != nil {
		def.client = *fm.Client
	}
	if fm.Type != nil {
		def.promptType = *fm.Type
	}
	if fm.Tools != nil {
		def.tools = append(def.tools, fm.Tools...)
	}
	if fm.MaxTurns != nil {
		def.maxTurns = *fm.MaxTurns
	}
	if fm.Extends != nil {
		def.extends = *fm.Extends
	}
	return def, nil
}

// ParseBytes compiles a prompt document, rejecting content that is not UTF-8.
func ParseBytes(data []byte) (*Definition, error) {
	if !utf8.Valid(data) {
		return nil, NewError(KindUtf8, "document is not valid UTF-8")
	}
	return Parse(string(data))
}

// ParseFile reads and compiles a prompt document from disk.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- prompt path is user-provided
	if err != nil {
		msg := err.Error()
		if errors.Is(err, fs.ErrNotExist) {
			msg = fmt.Sprintf("%s: no such file", path)
		}
		return nil, WrapError(KindIo, msg, err)
	}
	return ParseBytes(data)
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// yamlError converts a yaml.v3 failure into a KindYamlParse error. The parser
// reports frontmatter lines; the opening delimiter shifts them by one.
func yamlError(err error) *Error {
	out := WrapError(KindYamlParse, err.Error(), err)
	if m := yamlLinePattern.FindStringSubmatch(err.Error()); m != nil {
		if line, convErr := strconv.Atoi(m[1]); convErr == nil {
			out.Line = line + 1
		}
	}
	return out
}
