package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rzbill/slipway/internal/config"
	"github.com/rzbill/slipway/pkg/cli/format"
	"github.com/rzbill/slipway/pkg/log"
	"github.com/rzbill/slipway/pkg/version"
)

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
	noColor   bool

	// cfg is the loaded configuration, available to every command
	// after cobra.OnInitialize has run
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "slipway",
	Short: "Slipway - Release pipeline runner for Python packages",
	Long: `Slipway runs release pipelines for Python packages on your own
machine: it reads a pipeline file, expands the build matrix, builds
wheel and sdist distributions, and publishes them to a package index.
Think of it as the launch ramp between a git push and PyPI.`,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is specified, display the help
		if len(args) == 0 {
			cmd.Help()
			return
		}
	},
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./slipfile.yaml, then $HOME/.slipway/slipfile.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// initConfig loads the slipfile and builds the default logger from it.
// Flags beat environment, environment beats file, file beats defaults.
func initConfig() {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		fmt.Println(format.Error("Error loading config: %v", err))
		os.Exit(1)
	}
	cfg = loaded

	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if noColor {
		format.EnableColor(false)
	}

	logger, err := log.ApplyConfig(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Println(format.Error("Error configuring logging: %v", err))
		os.Exit(1)
	}
	log.SetDefaultLogger(logger)
}

// rootLogger returns the configured default logger for commands.
func rootLogger() log.Logger {
	return log.GetDefaultLogger()
}
