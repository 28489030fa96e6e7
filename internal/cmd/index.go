package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/namelens/promptc/internal/metrics"
	"github.com/namelens/promptc/internal/observability"
	"github.com/namelens/promptc/internal/promptdef"
	"github.com/namelens/promptc/internal/registry"
	"github.com/namelens/promptc/internal/store"
)

var indexCmd = &cobra.Command{
	Use:   "index [dir]",
	Short: "Compile prompts and record them in the catalog",
	Long: `Compile every prompt under a directory, verify the set, and upsert each
definition into the local catalog database.

Existing rows with the same name are replaced. Rows for prompts that no longer
exist are kept until removed with 'catalog delete'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().Bool("include-defaults", false, "Also index the embedded prompt set")
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	includeDefaults, err := cmd.Flags().GetBool("include-defaults")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	dir, err := resolvePromptDir(args, cfg.Prompts.Dir)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("include-defaults") {
		includeDefaults = cfg.Prompts.IncludeDefaults
	}

	start := time.Now()
	reg, err := registry.Build(dir, includeDefaults)
	if err == nil {
		if problems := reg.Verify(); len(problems) > 0 {
			err = problems[0]
		}
	}
	if err != nil {
		metrics.RecordOperation(metrics.OpIndex, metrics.ErrorKind(err), time.Since(start))
		return err
	}

	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	runID := uuid.NewString()
	indexedAt := time.Now().UTC()
	for _, entry := range reg.List() {
		if err := db.PutDefinition(ctx, entry.Source, entry.Digest, entry.Definition, indexedAt); err != nil {
			metrics.RecordOperation(metrics.OpIndex, promptdef.KindIo.String(), time.Since(start))
			return err
		}
	}

	absDir := dir
	if abs, err := filepath.Abs(dir); err == nil {
		absDir = abs
	}
	meta := map[string]string{
		store.MetaLastIndexedAt: indexedAt.Format(time.RFC3339),
		store.MetaLastIndexRun:  runID,
		store.MetaLastIndexDir:  absDir,
	}
	for key, value := range meta {
		if err := db.SetMeta(ctx, key, value); err != nil {
			return err
		}
	}

	metrics.RecordOperation(metrics.OpIndex, "", time.Since(start))
	metrics.SetPromptsLoaded(reg.Len())
	observability.Logger().Info("Indexed prompts",
		zap.String("run_id", runID),
		zap.String("dir", absDir),
		zap.String("driver", db.Driver()),
		zap.Int("count", reg.Len()))

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "indexed %d prompt(s) from %s (run %s)\n", reg.Len(), absDir, runID)
	return err
}
