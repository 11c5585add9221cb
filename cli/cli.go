// Package cli builds the jsq command tree.  Commands resolve their
// settings from defaults, a jsq.yaml config file, JSQ_ environment
// variables, and flags, in rising precedence.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Options carries the state shared across commands: the resolved config
// and the logger, populated before any command body runs.
type Options struct {
	ConfigFile string
	Verbose    bool

	Config *Config
	Logger *zap.Logger
}

// Root builds the jsq root command.
func Root() *cobra.Command {
	opts := &Options{}
	cmd := &cobra.Command{
		Use:   "jsq",
		Short: "JSQ query compiler",
		Long: `jsq compiles JSON-shaped queries against a YAML-described element
type and runs them over sequences of rows.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(opts.ConfigFile, cmd.Flags())
			if err != nil {
				return err
			}
			opts.Config = cfg
			logger, err := newLogger(cfg.Verbose || opts.Verbose)
			if err != nil {
				return err
			}
			opts.Logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.Logger != nil {
				opts.Logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default jsq.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	return cmd
}

// newLogger builds the command logger.  Logs go to stderr either way, so
// result output on stdout stays machine-readable.
func newLogger(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
