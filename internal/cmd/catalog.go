package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/namelens/promptc/internal/output"
	"github.com/namelens/promptc/internal/store"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect the indexed prompt catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed prompts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		entries, err := db.ListDefinitions(cmd.Context())
		if err != nil {
			return err
		}
		rendered, err := output.NewFormatter(format).FormatCatalog(entries)
		if err != nil {
			return err
		}
		return emit(cmd, rendered)
	},
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one indexed prompt with its compiled definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		entry, err := db.GetDefinition(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if entry == nil {
			return fmt.Errorf("prompt %q is not in the catalog", args[0])
		}

		if format == output.FormatJSON {
			data, err := json.MarshalIndent(entry, "", "  ")
			if err != nil {
				return err
			}
			return emit(cmd, string(data))
		}

		rendered, err := output.NewFormatter(format).FormatCatalog([]store.CatalogEntry{*entry})
		if err != nil {
			return err
		}
		var definition bytes.Buffer
		if err := json.Indent(&definition, entry.Definition, "", "  "); err != nil {
			definition.Reset()
			definition.Write(entry.Definition)
		}
		if format == output.FormatMarkdown {
			return emit(cmd, rendered+"\n\n```json\n"+definition.String()+"\n```")
		}
		return emit(cmd, rendered+"\n"+definition.String())
	},
}

var catalogDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a prompt from the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		removed, err := db.DeleteDefinition(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("prompt %q is not in the catalog", args[0])
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return err
	},
}

var catalogStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show when the catalog was last indexed",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer db.Close() //nolint:errcheck

		entries, err := db.ListDefinitions(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "driver:   %s\n", db.Driver())
		_, _ = fmt.Fprintf(out, "prompts:  %d\n", len(entries))
		for _, key := range []string{store.MetaLastIndexedAt, store.MetaLastIndexRun, store.MetaLastIndexDir} {
			value, ok, err := db.GetMeta(ctx, key)
			if err != nil {
				return err
			}
			if !ok {
				value = "-"
			}
			_, _ = fmt.Fprintf(out, "%s: %s\n", key, value)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogListCmd, catalogShowCmd, catalogDeleteCmd, catalogStatusCmd)

	addOutputFlags(catalogListCmd)
	addOutputFlags(catalogShowCmd)
}
