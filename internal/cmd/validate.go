package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/namelens/promptc/internal/metrics"
	"github.com/namelens/promptc/internal/output"
	"github.com/namelens/promptc/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate <instance.json|->",
	Short: "Validate JSON against a schema or a prompt's inputs/output",
	Long: `Validate a JSON instance against a JSON Schema file (--schema) or against the
inputs or output schema of a prompt file (--prompt with --against).

By default the first violation is reported. --detailed lists every violation
with its JSON Pointer path. The command exits non-zero when the instance is
invalid.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	addOutputFlags(validateCmd)

	validateCmd.Flags().String("schema", "", "JSON Schema file")
	validateCmd.Flags().String("prompt", "", "Prompt file whose schema to validate against")
	validateCmd.Flags().String("against", "output", "Prompt schema to use: inputs, output")
	validateCmd.Flags().Bool("detailed", false, "Report every violation")
	validateCmd.MarkFlagsMutuallyExclusive("schema", "prompt")
	validateCmd.MarkFlagsOneRequired("schema", "prompt")
}

func runValidate(cmd *cobra.Command, args []string) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	detailed, err := cmd.Flags().GetBool("detailed")
	if err != nil {
		return err
	}

	validator, err := resolveValidator(cmd)
	if err != nil {
		return err
	}

	instance, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	start := time.Now()
	diags, err := validator.Diagnostics(instance)
	metrics.RecordOperation(metrics.OpValidate, metrics.ErrorKind(err), time.Since(start))
	if err != nil {
		return err
	}
	metrics.RecordDiagnostics(len(diags))

	// Without --detailed only the first violation is displayed; the returned
	// error always carries all of them.
	report := &output.ValidationReport{Valid: len(diags) == 0, Diagnostics: diags}
	if !report.Valid && !detailed {
		report.Diagnostics = diags[:1]
	}

	rendered, err := output.NewFormatter(format).FormatValidation(report)
	if err != nil {
		return err
	}
	if err := emit(cmd, rendered); err != nil {
		return err
	}
	return validate.Join(diags)
}

func resolveValidator(cmd *cobra.Command) (*validate.Validator, error) {
	schemaPath, err := cmd.Flags().GetString("schema")
	if err != nil {
		return nil, err
	}
	if schemaPath != "" {
		schema, err := readInput(cmd, schemaPath)
		if err != nil {
			return nil, err
		}
		return validate.Compile(schema)
	}

	promptPath, err := cmd.Flags().GetString("prompt")
	if err != nil {
		return nil, err
	}
	against, err := cmd.Flags().GetString("against")
	if err != nil {
		return nil, err
	}

	def, err := compileFile(cmd, promptPath)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(strings.TrimSpace(against)) {
	case "inputs", "input":
		return validate.CompileSchema(def.InputsSchema())
	case "output", "outputs":
		return validate.CompileSchema(def.OutputSchema())
	default:
		return nil, fmt.Errorf("--against must be inputs or output, got %q", against)
	}
}
