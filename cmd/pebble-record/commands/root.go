package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/marshallshelly/pebble-record/cmd/pebble-record/output"
	"github.com/marshallshelly/pebble-record/pkg/runtime"
)

var (
	// Global flags
	dbURL        string
	configPath   string
	modelsPath   string
	outputFormat string
	debug        bool
	verbose      bool

	format output.Format
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pebble-record",
	Short: "Pebble Record - query PostgreSQL tables through model schemas",
	Long: `Pebble Record reads model schemas from Go structs or YAML files and runs
queries against PostgreSQL through the same builder applications use.

Features:
  - Filter, order and page through any registered table
  - Eager load hasMany, hasOne and belongsTo relations
  - Soft-delete aware (--with-trashed, --only-trashed)
  - Table, JSON, YAML and MessagePack output
  - Interactive table browser`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		f, err := output.ParseFormat(outputFormat)
		if err != nil {
			return err
		}
		format = f
		return nil
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		output.Stdout = os.Stderr
		output.Error("%v", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "Database connection URL (overrides the config file and $"+runtime.EnvDatabaseURL+")")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&modelsPath, "models", "./models", "Model definitions: a .go/.yaml file or a directory")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format: table, json, yaml or msgpack")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Record executed statements and print them after the command")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
}
