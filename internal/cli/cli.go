// Package cli implements the trustcard command line.
package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/prempunmagar/trustcard/internal/app"
	"github.com/prempunmagar/trustcard/internal/config"
	"github.com/prempunmagar/trustcard/internal/logging"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	logLevel   string
}

// NewRootCmd builds the command tree. Output goes to cmd.OutOrStdout so tests
// can capture it; logs go to stderr.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "trustcard",
		Short: "Verify social media posts and grade their trustworthiness",
		Long: `TrustCard extracts a social media post, runs media, claim and source
analysis over it and condenses the results into an explainable 0-100 trust
score with a letter grade.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (.toml or .yaml); defaults to $"+config.EnvConfigPath)
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "",
		"log level: debug, info, warn or error (overrides config)")

	root.AddCommand(
		newServeCmd(opts),
		newAnalyzeCmd(opts),
		newCacheCmd(opts),
		newSourcesCmd(opts),
		newGradeCmd(opts),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (o *options) load() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) logging.Logger {
	return logging.New("trustcard", logging.ParseLevel(cfg.Logging.Level), w)
}

// open loads the config and builds the application. Callers must Close it.
func (o *options) open(cmd *cobra.Command) (*app.Application, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, newLogger(cfg, cmd.ErrOrStderr()))
}
