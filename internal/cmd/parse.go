package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/namelens/promptc/internal/metrics"
	"github.com/namelens/promptc/internal/observability"
	"github.com/namelens/promptc/internal/output"
	"github.com/namelens/promptc/internal/promptdef"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file|->",
	Short: "Compile a prompt file and print its definition",
	Long: `Compile a *.prompt.md file: split the frontmatter, lower the inputs and
output shorthand to JSON Schema and print the resulting definition.

Use "-" to read the document from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
	addOutputFlags(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}

	def, err := compileFile(cmd, args[0])
	if err != nil {
		return err
	}

	rendered, err := output.NewFormatter(format).FormatDefinition(def)
	if err != nil {
		return err
	}
	return emit(cmd, rendered)
}

// compileFile reads and parses one prompt document, recording the parse
// operation.
func compileFile(cmd *cobra.Command, path string) (*promptdef.Definition, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	def, err := promptdef.ParseBytes(data)
	metrics.RecordOperation(metrics.OpParse, metrics.ErrorKind(err), time.Since(start))
	if err != nil {
		return nil, err
	}

	observability.Logger().Debug("Compiled prompt",
		zap.String("path", path),
		zap.String("name", def.Name()),
		zap.Duration("elapsed", time.Since(start)))
	return def, nil
}
