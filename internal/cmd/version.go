package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/namelens/promptc/internal/config"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for build, Go and dependency versions.",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if !extended {
			_, err := fmt.Fprintf(out, "%s %s\n", config.AppName, versionInfo.Version)
			return err
		}

		deps := crucible.GetVersion()
		lines := []string{
			fmt.Sprintf("%s %s", config.AppName, versionInfo.Version),
			"Commit:   " + versionInfo.Commit,
			"Built:    " + versionInfo.BuildDate,
			"Go:       " + runtime.Version(),
			"Gofulmen: " + deps.Gofulmen,
			"Crucible: " + deps.Crucible,
		}
		_, err := fmt.Fprint(out, ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
