package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/namelens/promptc/internal/config"
	"github.com/namelens/promptc/internal/observability"
)

var (
	cfgFile string
	verbose bool

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   config.AppName,
	Short: "Compile and validate prompt definition files",
	Long: `promptc compiles *.prompt.md files: YAML frontmatter with a compact type
shorthand, followed by a Jinja-style body template.

It lowers the shorthand to JSON Schema, validates data against those schemas,
renders templates and serves the same operations over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. It is called once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// CLI mode runs without telemetry; serve installs the Prometheus system.
	observability.DisableTelemetry()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/promptc/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
}

func initConfig() {
	observability.InitCLILogger(config.AppName, verbose)

	config.SetConfigFile(cfgFile)
	if cfgFile != "" {
		observability.Logger().Debug("Using config file", zap.String("path", cfgFile))
	}
}
