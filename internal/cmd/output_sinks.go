package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/namelens/promptc/internal/output"
	"github.com/namelens/promptc/internal/promptdef"
)

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

// addOutputFlags registers --output-format and --out on cmd.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output-format", "o", "table", "Output format: table, json, markdown")
	cmd.Flags().String("out", "", "Write output to a file instead of stdout")
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// openCommandSink opens --out, or the command's stdout when unset.
func openCommandSink(cmd *cobra.Command) (*outputSink, error) {
	path, err := cmd.Flags().GetString("out")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" || strings.TrimSpace(path) == "-" {
		return &outputSink{writer: cmd.OutOrStdout(), close: func() error { return nil }, path: "-"}, nil
	}
	return openSink(path)
}

func openSink(path string) (*outputSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return &outputSink{writer: os.Stdout, close: func() error { return nil }, path: "-"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(trimmed)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: trimmed}, nil
}

// emit writes rendered output followed by a newline.
func emit(cmd *cobra.Command, rendered string) error {
	sink, err := openCommandSink(cmd)
	if err != nil {
		return err
	}
	defer sink.close() //nolint:errcheck
	if rendered == "" {
		return nil
	}
	_, err = fmt.Fprintln(sink.writer, rendered)
	return err
}

// readInput reads a file, or stdin when path is "-". Read failures carry the
// Io error kind.
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, promptdef.WrapError(promptdef.KindIo, err.Error(), err)
	}
	return data, nil
}
