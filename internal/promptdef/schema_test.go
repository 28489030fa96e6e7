package promptdef

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func parseYAMLSchema(t *testing.T, src string) (*Schema, error) {
	t.Helper()
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &node))
	return ParseSchema(&node)
}

func TestParseSchemaMapping(t *testing.T) {
	s, err := parseYAMLSchema(t, `
title: string
summary: string?
tags: string[]
severity: low | medium | high
`)
	require.NoError(t, err)

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type": "object",
		"properties": {
			"title": {"type": "string"},
			"summary": {"anyOf": [{"type": "string"}, {"type": "null"}]},
			"tags": {"type": "array", "items": {"type": "string"}},
			"severity": {"type": "string", "enum": ["low", "medium", "high"]}
		},
		"required": ["title", "tags", "severity"]
	}`, string(data))
}

func TestParseSchemaRequiredFollowsDeclarationOrder(t *testing.T) {
	s, err := parseYAMLSchema(t, "zeta: string\nalpha: integer?\nmid: boolean\n")
	require.NoError(t, err)
	require.Equal(t, []string{"zeta", "mid"}, s.Required)

	names := make([]string, 0, len(s.Properties))
	for _, p := range s.Properties {
		names = append(names, p.Name)
	}
	require.Equal(t, []string{"zeta", "alpha", "mid"}, names)
}

func TestParseSchemaNested(t *testing.T) {
	s, err := parseYAMLSchema(t, `
findings:
  - file: string
    line: integer?
    message: string
meta:
  author: string
`)
	require.NoError(t, err)

	findings, ok := s.Property("findings")
	require.True(t, ok)
	require.Equal(t, "array", findings.Type)
	require.Equal(t, "object", findings.Items.Type)
	require.Equal(t, []string{"file", "message"}, findings.Items.Required)

	meta, ok := s.Property("meta")
	require.True(t, ok)
	require.Equal(t, []string{"author"}, meta.Required)
	require.Equal(t, []string{"findings", "meta"}, s.Required)
}

func TestParseSchemaSequenceArity(t *testing.T) {
	t.Run("ExactlyOne", func(t *testing.T) {
		s, err := parseYAMLSchema(t, "items:\n  - integer\n")
		require.NoError(t, err)
		items, _ := s.Property("items")
		require.Equal(t, &Schema{Type: "array", Items: &Schema{Type: "integer"}}, items)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := parseYAMLSchema(t, "items: []\n")
		require.ErrorIs(t, err, ErrInvalidSchema)
	})

	t.Run("TwoElements", func(t *testing.T) {
		_, err := parseYAMLSchema(t, "items:\n  - string\n  - integer\n")
		require.ErrorIs(t, err, ErrInvalidSchema)
		require.Contains(t, err.Error(), "exactly one element")
	})
}

func TestParseSchemaUnsupportedNodes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind string
	}{
		{"Integer", "count: 5\n", "int"},
		{"Bool", "flag: true\n", "bool"},
		{"Float", "ratio: 0.5\n", "float"},
		{"Null", "nothing: ~\n", "null"},
		{"Tagged", "custom: !thing value\n", "tagged (!thing)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseYAMLSchema(t, tt.src)
			require.Error(t, err)
			require.Equal(t, KindInvalidSchema, KindOf(err))
			require.Contains(t, err.Error(), tt.kind)
		})
	}
}

func TestParseSchemaNonStringKey(t *testing.T) {
	_, err := parseYAMLSchema(t, "1: string\n")
	require.ErrorIs(t, err, ErrInvalidSchema)
	require.Contains(t, err.Error(), "non-string key")
}

func TestParseSchemaFirstErrorWins(t *testing.T) {
	_, err := parseYAMLSchema(t, "a: string\nb: 3\nc: []\n")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported YAML type int at line 2")
}

func TestParseSchemaAbsent(t *testing.T) {
	s, err := ParseSchema(nil)
	require.NoError(t, err)
	require.True(t, s.IsEmpty())
	require.Equal(t, "{}", s.String())

	s, err = ParseSchema(&yaml.Node{})
	require.NoError(t, err)
	require.Equal(t, "{}", s.String())
}

func TestParseSchemaFollowsAliases(t *testing.T) {
	s, err := parseYAMLSchema(t, "base: &b string?\nother: *b\n")
	require.NoError(t, err)
	require.Empty(t, s.Required)
	other, ok := s.Property("other")
	require.True(t, ok)
	require.True(t, other.IsOptional())
}

func TestSchemaIsOptionalIsStructural(t *testing.T) {
	handWritten := &Schema{AnyOf: []*Schema{{Type: "integer"}, {Type: "null"}}}
	require.True(t, handWritten.IsOptional())

	noNull := &Schema{AnyOf: []*Schema{{Type: "integer"}, {Type: "string"}}}
	require.False(t, noNull.IsOptional())

	require.False(t, (&Schema{Type: "null"}).IsOptional())
}

func TestSchemaCloneIsDeep(t *testing.T) {
	s, err := parseYAMLSchema(t, "tags: string[]\nnote: string?\n")
	require.NoError(t, err)

	clone := s.Clone()
	require.Equal(t, s, clone)

	clone.Required[0] = "changed"
	clone.Properties[0].Schema.Items.Type = "integer"
	require.Equal(t, "tags", s.Required[0])
	tags, _ := s.Property("tags")
	require.Equal(t, "string", tags.Items.Type)
}

func TestEmptyObjectKeepsRequiredArray(t *testing.T) {
	s, err := parseYAMLSchema(t, "{}\n")
	require.NoError(t, err)
	require.Equal(t, `{"type":"object","properties":{},"required":[]}`, s.String())
}
