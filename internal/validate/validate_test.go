package validate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/namelens/promptc/internal/promptdef"
)

const personSchema = `{
	"type": "object",
	"properties": {
		"name": {"type": "string"},
		"age": {"type": "integer"}
	},
	"required": ["name", "age"]
}`

func TestJSON(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		require.NoError(t, JSON([]byte(personSchema), []byte(`{"name":"Alice","age":30}`)))
	})

	t.Run("MissingRequired", func(t *testing.T) {
		err := JSON([]byte(personSchema), []byte(`{"age":30}`))
		require.ErrorIs(t, err, promptdef.ErrValidationFailed)
		require.Contains(t, err.Error(), "name")
		require.Contains(t, err.Error(), "schema validation failed")
	})

	t.Run("EmptySchemaAcceptsAnything", func(t *testing.T) {
		for _, doc := range []string{`null`, `1`, `"x"`, `[1,2]`, `{"a":{}}`} {
			require.NoError(t, JSON([]byte(`{}`), []byte(doc)), doc)
		}
	})
}

func TestWithDetails(t *testing.T) {
	t.Run("ValidHasNoDiagnostics", func(t *testing.T) {
		diags, err := WithDetails([]byte(personSchema), []byte(`{"name":"Alice","age":30}`))
		require.NoError(t, err)
		require.NotNil(t, diags)
		require.Empty(t, diags)
	})

	t.Run("WrongType", func(t *testing.T) {
		diags, err := WithDetails([]byte(personSchema), []byte(`{"name":"Alice","age":"thirty"}`))
		require.NoError(t, err)
		require.NotEmpty(t, diags)
		require.Equal(t, "/age", diags[0].Path)
		require.Contains(t, diags[0].String(), "age")
	})

	t.Run("MultipleViolations", func(t *testing.T) {
		diags, err := WithDetails([]byte(personSchema), []byte(`{"name":5,"age":"x"}`))
		require.NoError(t, err)
		require.Len(t, diags, 2)

		paths := []string{diags[0].Path, diags[1].Path}
		require.ElementsMatch(t, []string{"/name", "/age"}, paths)
	})
}

func TestFailFastAgreesWithDetails(t *testing.T) {
	instances := []string{
		`{"name":"Alice","age":30}`,
		`{"age":30}`,
		`{"name":1}`,
		`[]`,
		`{"name":"Bob","age":1.5}`,
	}

	for _, inst := range instances {
		diags, err := WithDetails([]byte(personSchema), []byte(inst))
		require.NoError(t, err, inst)

		failFast := JSON([]byte(personSchema), []byte(inst))
		require.Equal(t, len(diags) == 0, failFast == nil, inst)
	}
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Path: "/items/0", Message: "expected integer"}
	require.Equal(t, "path: /items/0, error: expected integer", d.String())
}

func TestInvalidSchema(t *testing.T) {
	tests := []struct {
		name   string
		schema string
	}{
		{"NotJSON", `{"type":`},
		{"BadType", `{"type": 5}`},
		{"BadRequired", `{"required": "name"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := WithDetails([]byte(tt.schema), []byte(`{}`))
			require.ErrorIs(t, err, promptdef.ErrInvalidSchema)

			err = JSON([]byte(tt.schema), []byte(`{}`))
			require.ErrorIs(t, err, promptdef.ErrInvalidSchema)
		})
	}
}

func TestInvalidInstance(t *testing.T) {
	_, err := WithDetails([]byte(personSchema), []byte(`{"name":`))
	require.ErrorIs(t, err, promptdef.ErrValidationFailed)
	require.Contains(t, err.Error(), "invalid JSON instance")

	_, err = WithDetails([]byte(personSchema), []byte(`{} {}`))
	require.ErrorIs(t, err, promptdef.ErrValidationFailed)
}

func TestCompileSchemaFromFrontmatter(t *testing.T) {
	def, err := promptdef.Parse("---\nname: A\noutput:\n  title: string\n  note: string?\n  tags: string[]\n---\n")
	require.NoError(t, err)

	v, err := CompileSchema(def.OutputSchema())
	require.NoError(t, err)

	require.NoError(t, v.Validate([]byte(`{"title":"t","tags":[]}`)))
	require.NoError(t, v.Validate([]byte(`{"title":"t","note":null,"tags":["a"]}`)))
	require.Error(t, v.Validate([]byte(`{"title":"t"}`)))
	require.Error(t, v.Validate([]byte(`{"title":"t","tags":[1]}`)))
}

func TestCompileSchemaNilAcceptsAnything(t *testing.T) {
	v, err := CompileSchema(nil)
	require.NoError(t, err)
	require.NoError(t, v.Validate([]byte(`{"anything":true}`)))
}

func TestValidatorConcurrentUse(t *testing.T) {
	v, err := Compile([]byte(personSchema))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan int, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			inst := `{"name":"Alice","age":30}`
			if i%2 == 1 {
				inst = `{"age":30}`
			}
			diags, err := v.Diagnostics([]byte(inst))
			if err != nil {
				results <- -1
				return
			}
			results <- len(diags)
		}(i)
	}
	wg.Wait()
	close(results)

	var valid, invalid int
	for n := range results {
		require.NotEqual(t, -1, n)
		if n == 0 {
			valid++
		} else {
			invalid++
		}
	}
	require.Equal(t, 16, valid)
	require.Equal(t, 16, invalid)
}
