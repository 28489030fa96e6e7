package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/namelens/promptc/internal/metrics"
	"github.com/namelens/promptc/internal/output"
	"github.com/namelens/promptc/internal/render"
	"github.com/namelens/promptc/internal/validate"
)

var renderCmd = &cobra.Command{
	Use:   "render <file|->",
	Short: "Render a prompt body with input values",
	Long: `Render the body template of a prompt file.

Inputs come from --inputs (a JSON object, or @path to read one from a file)
and repeated --input key=value pairs, which take precedence and are always
strings. Inputs are validated against the prompt's inputs schema first unless
--no-validate is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().String("inputs", "", "Inputs as a JSON object, or @file")
	renderCmd.Flags().StringArray("input", nil, "Input value as key=value (repeatable)")
	renderCmd.Flags().Bool("no-validate", false, "Skip inputs schema validation")
	renderCmd.Flags().String("out", "", "Write output to a file instead of stdout")
}

func runRender(cmd *cobra.Command, args []string) error {
	noValidate, err := cmd.Flags().GetBool("no-validate")
	if err != nil {
		return err
	}

	def, err := compileFile(cmd, args[0])
	if err != nil {
		return err
	}

	inputs, err := collectInputs(cmd)
	if err != nil {
		return err
	}

	start := time.Now()
	if !noValidate {
		validator, err := validate.CompileSchema(def.InputsSchema())
		if err != nil {
			return err
		}
		diags, err := validator.Diagnostics(inputs)
		if err != nil {
			return err
		}
		if len(diags) > 0 {
			metrics.RecordDiagnostics(len(diags))
			report, _ := output.NewFormatter(output.FormatTable).FormatValidation(&output.ValidationReport{Diagnostics: diags})
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), report)
			err := validate.Join(diags)
			metrics.RecordOperation(metrics.OpRender, metrics.ErrorKind(err), time.Since(start))
			return fmt.Errorf("inputs for %s: %w", def.Name(), err)
		}
	}

	tpl, err := render.Compile(def.BodyTemplate())
	if err == nil {
		var out string
		out, err = tpl.RenderJSON(inputs)
		if err == nil {
			metrics.RecordOperation(metrics.OpRender, "", time.Since(start))
			return emit(cmd, out)
		}
	}
	metrics.RecordOperation(metrics.OpRender, metrics.ErrorKind(err), time.Since(start))
	return err
}

// collectInputs merges --inputs and --input into one JSON object.
func collectInputs(cmd *cobra.Command) ([]byte, error) {
	raw, err := cmd.Flags().GetString("inputs")
	if err != nil {
		return nil, err
	}
	pairs, err := cmd.Flags().GetStringArray("input")
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "@") {
		data, err := readInput(cmd, strings.TrimPrefix(raw, "@"))
		if err != nil {
			return nil, err
		}
		raw = string(data)
	}
	if raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&values); err != nil {
			return nil, fmt.Errorf("--inputs must be a JSON object: %w", err)
		}
		if values == nil {
			values = map[string]any{}
		}
	}

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("--input %q must be key=value", pair)
		}
		values[key] = value
	}

	return json.Marshal(values)
}
