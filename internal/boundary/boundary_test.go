package boundary

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const reviewerDoc = `---
name: Reviewer
extends: Base
tools: [grep, read_file]
inputs:
  diff: string
output:
  ok: boolean
---
Review {{ diff }}`

func TestParsePrompt(t *testing.T) {
	table := NewTable()

	h, errRec := table.ParsePrompt([]byte(reviewerDoc))
	require.Nil(t, errRec)
	require.NotZero(t, h)

	def, err := table.Definition(h)
	require.NoError(t, err)
	require.Equal(t, "Reviewer", def.Name)
	require.Equal(t, "anthropic/claude-sonnet", def.Client)
	require.Equal(t, "llm", def.PromptType)
	require.Equal(t, 2, def.ToolsLen)
	require.Equal(t, []string{"grep", "read_file"}, def.Tools)
	require.True(t, def.HasExtends)
	require.Equal(t, "Base", def.Extends)
	require.JSONEq(t, `{"type":"object","properties":{"diff":{"type":"string"}},"required":["diff"]}`, def.InputsSchema)
	require.Equal(t, "Review {{ diff }}", def.BodyTemplate)

	require.NoError(t, table.Release(h))
	require.Zero(t, table.Live())
}

func TestParsePromptErrors(t *testing.T) {
	table := NewTable()

	h, errRec := table.ParsePrompt([]byte("---\nname: \xff\n---\n"))
	require.Zero(t, h)
	require.NotNil(t, errRec)
	require.Equal(t, "utf8", errRec.Kind)

	h, errRec = table.ParsePrompt([]byte("---\nclient: x\n---\n"))
	require.Zero(t, h)
	require.Equal(t, "missing_field", errRec.Kind)
	require.Contains(t, errRec.Message, "name")
	errRec.Release()

	require.Zero(t, table.Live())
}

func TestRenderTemplate(t *testing.T) {
	table := NewTable()

	h, errRec := table.RenderTemplate([]byte("Hello {{ name }}!"), []byte(`{"name":"World"}`))
	require.Nil(t, errRec)
	out, err := table.String(h)
	require.NoError(t, err)
	require.Equal(t, "Hello World!", out)
	require.NoError(t, table.Release(h))

	_, errRec = table.RenderTemplate([]byte("{{ name"), []byte(`{}`))
	require.Equal(t, "template_compile", errRec.Kind)

	_, errRec = table.RenderTemplate([]byte("ok"), []byte("\xfe"))
	require.Equal(t, "utf8", errRec.Kind)
}

func TestValidateWithDetails(t *testing.T) {
	table := NewTable()
	schema := []byte(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`)

	h, errRec := table.ValidateWithDetails(schema, []byte(`{"name":"Alice"}`))
	require.Nil(t, errRec)
	diags, err := table.Diagnostics(h)
	require.NoError(t, err)
	require.Zero(t, diags.Len)

	h2, errRec := table.ValidateWithDetails(schema, []byte(`{}`))
	require.Nil(t, errRec)
	diags, err = table.Diagnostics(h2)
	require.NoError(t, err)
	require.Equal(t, 1, diags.Len)
	require.Contains(t, diags.Items[0].Message, "name")

	_, errRec = table.ValidateWithDetails([]byte(`{"type":7}`), []byte(`{}`))
	require.Equal(t, "invalid_schema", errRec.Kind)

	require.Equal(t, 2, table.Live())
	require.NoError(t, table.Release(h))
	require.NoError(t, table.Release(h2))
}

func TestReleaseSemantics(t *testing.T) {
	table := NewTable()

	require.NoError(t, table.Release(0))
	require.ErrorIs(t, table.Release(42), ErrUnknownHandle)

	h, _ := table.RenderTemplate([]byte("x"), nil)
	require.NoError(t, table.Release(h))
	require.ErrorIs(t, table.Release(h), ErrUnknownHandle)

	_, err := table.String(h)
	require.ErrorIs(t, err, ErrUnknownHandle)

	var nilRec *ErrorRecord
	require.NotPanics(t, nilRec.Release)
}

func TestWrongRecordType(t *testing.T) {
	table := NewTable()
	h, _ := table.RenderTemplate([]byte("x"), nil)

	_, err := table.Definition(h)
	require.ErrorIs(t, err, ErrWrongRecord)
	_, err = table.Diagnostics(h)
	require.ErrorIs(t, err, ErrWrongRecord)
}

func TestHandlesAreUniqueUnderConcurrency(t *testing.T) {
	table := NewTable()

	var wg sync.WaitGroup
	handles := make(chan Handle, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, errRec := table.ParsePrompt([]byte(reviewerDoc))
			if errRec == nil {
				handles <- h
			}
		}()
	}
	wg.Wait()
	close(handles)

	seen := map[Handle]bool{}
	for h := range handles {
		require.False(t, seen[h])
		seen[h] = true
		require.NoError(t, table.Release(h))
	}
	require.Len(t, seen, 64)
	require.Zero(t, table.Live())
}
