package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/namelens/promptc/internal/output"
	"github.com/namelens/promptc/internal/promptdef"
)

const greeterPrompt = "---\nname: Greeter\ninputs:\n  who: string\n  age: integer?\n---\nHi {{ who }}.\n"

func writePrompt(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExitCodeFor(t *testing.T) {
	assert.Equal(t, foundry.ExitConfigInvalid, ExitCodeFor(&configError{err: errors.New("bad yaml")}))
	assert.Equal(t, foundry.ExitFailure, ExitCodeFor(errors.New("boom")))
	assert.Equal(t, foundry.ExitFailure, ExitCodeFor(promptdef.NewError(promptdef.KindValidationFailed, "x")))

	cmd := &cobra.Command{}
	_, err := readInput(cmd, filepath.Join(t.TempDir(), "missing.prompt.md"))
	require.Error(t, err)
	assert.Equal(t, foundry.ExitFileNotFound, ExitCodeFor(err))
}

func TestReadInputStdin(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.SetIn(bytes.NewBufferString(`{"a":1}`))
	data, err := readInput(cmd, "-")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))
}

func newInputsCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().String("inputs", "", "")
	cmd.Flags().StringArray("input", nil, "")
	return cmd
}

func TestCollectInputs(t *testing.T) {
	t.Run("MergesPairsOverJSON", func(t *testing.T) {
		cmd := newInputsCmd()
		require.NoError(t, cmd.Flags().Set("inputs", `{"age":30,"who":"Bob"}`))
		require.NoError(t, cmd.Flags().Set("input", "who=Ann"))
		require.NoError(t, cmd.Flags().Set("input", "note=a=b"))

		data, err := collectInputs(cmd)
		require.NoError(t, err)
		assert.JSONEq(t, `{"age":30,"who":"Ann","note":"a=b"}`, string(data))
	})

	t.Run("FromFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "inputs.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"who":"Cy"}`), 0o644))

		cmd := newInputsCmd()
		require.NoError(t, cmd.Flags().Set("inputs", "@"+path))
		data, err := collectInputs(cmd)
		require.NoError(t, err)
		assert.JSONEq(t, `{"who":"Cy"}`, string(data))
	})

	t.Run("Empty", func(t *testing.T) {
		data, err := collectInputs(newInputsCmd())
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(data))
	})

	t.Run("BadPair", func(t *testing.T) {
		cmd := newInputsCmd()
		require.NoError(t, cmd.Flags().Set("input", "novalue"))
		_, err := collectInputs(cmd)
		require.Error(t, err)
	})

	t.Run("NotAnObject", func(t *testing.T) {
		cmd := newInputsCmd()
		require.NoError(t, cmd.Flags().Set("inputs", `[1,2]`))
		_, err := collectInputs(cmd)
		require.Error(t, err)
	})
}

func TestResolvePromptDir(t *testing.T) {
	dir, err := resolvePromptDir([]string{"/tmp/prompts"}, "/etc/prompts")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/prompts", dir)

	dir, err = resolvePromptDir(nil, "/etc/prompts")
	require.NoError(t, err)
	assert.Equal(t, "/etc/prompts", dir)

	dir, err = resolvePromptDir(nil, "")
	require.NoError(t, err)
	assert.NotEmpty(t, dir)
}

func TestCheckDir(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "greeter.prompt.md", greeterPrompt)
	writePrompt(t, dir, "nested/child.prompt.md", "---\nname: Child\nextends: Missing\n---\nbody\n")
	writePrompt(t, dir, "broken.prompt.md", "---\nname: [unclosed\n---\n")
	writePrompt(t, dir, "notes.md", "ignored")

	report, err := checkDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Failed)

	byPath := map[string]output.CheckItem{}
	for _, item := range report.Items {
		byPath[item.Path] = item
	}
	assert.Equal(t, output.StatusOK, byPath["greeter.prompt.md"].Status)
	assert.Equal(t, "Greeter", byPath["greeter.prompt.md"].Name)
	assert.Equal(t, output.StatusError, byPath["broken.prompt.md"].Status)
	assert.Equal(t, "yaml_parse", byPath["broken.prompt.md"].Kind)
	assert.Equal(t, output.StatusError, byPath["nested/child.prompt.md"].Status)
	assert.Equal(t, "registry", byPath["nested/child.prompt.md"].Kind)
	assert.Contains(t, byPath["nested/child.prompt.md"].Message, "Missing")
}

func TestCheckDirDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	writePrompt(t, dir, "a.prompt.md", greeterPrompt)
	writePrompt(t, dir, "b.prompt.md", greeterPrompt)

	report, err := checkDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Items[len(report.Items)-1].Message, "duplicate prompt name")
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{}
	addOutputFlags(cmd)
	cmd.Flags().String("schema", "", "")
	cmd.Flags().String("prompt", "", "")
	cmd.Flags().String("against", "output", "")
	cmd.Flags().Bool("detailed", false, "")
	return cmd
}

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()
	schema := writePrompt(t, dir, "schema.json", `{"type":"object","properties":{"n":{"type":"integer"},"s":{"type":"string"}}}`)
	good := writePrompt(t, dir, "good.json", `{"n":1}`)
	bad := writePrompt(t, dir, "bad.json", `{"n":"x","s":2}`)

	t.Run("Valid", func(t *testing.T) {
		cmd := newValidateCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		require.NoError(t, cmd.Flags().Set("schema", schema))
		require.NoError(t, cmd.Flags().Set("output-format", "json"))

		require.NoError(t, runValidate(cmd, []string{good}))
		var report output.ValidationReport
		require.NoError(t, json.Unmarshal(out.Bytes(), &report))
		assert.True(t, report.Valid)
	})

	t.Run("FirstViolationOnly", func(t *testing.T) {
		cmd := newValidateCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		require.NoError(t, cmd.Flags().Set("schema", schema))
		require.NoError(t, cmd.Flags().Set("output-format", "json"))

		err := runValidate(cmd, []string{bad})
		require.ErrorIs(t, err, promptdef.ErrValidationFailed)
		var report output.ValidationReport
		require.NoError(t, json.Unmarshal(out.Bytes(), &report))
		assert.False(t, report.Valid)
		assert.Len(t, report.Diagnostics, 1)
		assert.Contains(t, err.Error(), "path: /n")
		assert.Contains(t, err.Error(), "path: /s")
	})

	t.Run("Detailed", func(t *testing.T) {
		cmd := newValidateCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		require.NoError(t, cmd.Flags().Set("schema", schema))
		require.NoError(t, cmd.Flags().Set("detailed", "true"))
		require.NoError(t, cmd.Flags().Set("output-format", "json"))

		require.Error(t, runValidate(cmd, []string{bad}))
		var report output.ValidationReport
		require.NoError(t, json.Unmarshal(out.Bytes(), &report))
		assert.Len(t, report.Diagnostics, 2)
	})

	t.Run("AgainstPromptInputs", func(t *testing.T) {
		prompt := writePrompt(t, dir, "greeter.prompt.md", greeterPrompt)
		inputs := writePrompt(t, dir, "inputs.json", `{"who":"Ann","age":null}`)

		cmd := newValidateCmd()
		cmd.SetOut(&bytes.Buffer{})
		require.NoError(t, cmd.Flags().Set("prompt", prompt))
		require.NoError(t, cmd.Flags().Set("against", "inputs"))
		require.NoError(t, runValidate(cmd, []string{inputs}))

		require.NoError(t, cmd.Flags().Set("against", "sideways"))
		require.Error(t, runValidate(cmd, []string{inputs}))
	})
}

func newRenderCmd() *cobra.Command {
	cmd := newInputsCmd()
	cmd.Flags().Bool("no-validate", false, "")
	cmd.Flags().String("out", "", "")
	return cmd
}

func TestRunRender(t *testing.T) {
	prompt := writePrompt(t, t.TempDir(), "greeter.prompt.md", greeterPrompt)

	t.Run("Renders", func(t *testing.T) {
		cmd := newRenderCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		require.NoError(t, cmd.Flags().Set("input", "who=Ann"))

		require.NoError(t, runRender(cmd, []string{prompt}))
		assert.Equal(t, "Hi Ann.\n", out.String())
	})

	t.Run("RejectsInvalidInputs", func(t *testing.T) {
		cmd := newRenderCmd()
		var out, errOut bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&errOut)

		err := runRender(cmd, []string{prompt})
		require.ErrorIs(t, err, promptdef.ErrValidationFailed)
		assert.Empty(t, out.String())
		assert.Contains(t, errOut.String(), "who")
	})

	t.Run("NoValidate", func(t *testing.T) {
		cmd := newRenderCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		require.NoError(t, cmd.Flags().Set("no-validate", "true"))

		require.NoError(t, runRender(cmd, []string{prompt}))
		assert.Equal(t, "Hi .\n", out.String())
	})
}

func TestServeOverrides(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().String("host", "", "")
	cmd.Flags().IntP("port", "p", 0, "")
	cmd.Flags().String("prompts-dir", "", "")

	assert.Empty(t, serveOverrides(cmd))

	require.NoError(t, cmd.Flags().Set("port", "9000"))
	require.NoError(t, cmd.Flags().Set("prompts-dir", "./prompts"))
	overrides := serveOverrides(cmd)
	assert.Equal(t, map[string]any{"port": 9000}, overrides["server"])
	assert.Equal(t, map[string]any{"dir": "./prompts"}, overrides["prompts"])
}
