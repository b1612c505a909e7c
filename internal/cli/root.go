// Package cli provides the tagnotes command-line interface.
package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrlokans/tagnotes/internal/config"
	"github.com/mrlokans/tagnotes/internal/entrypoint"
	"github.com/mrlokans/tagnotes/internal/logging"
)

// cliState is the state shared by the subcommands of one invocation.
type cliState struct {
	version  string
	dbPath   string
	logLevel string

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCommand builds the command tree. version is reported by --version
// and /health.
func NewRootCommand(version string) *cobra.Command {
	rt := &cliState{version: version}

	rootCmd := &cobra.Command{
		Use:   "tagnotes",
		Short: "Tagged notes store with a resumable bulk import pipeline",
		Long: `Tagnotes stores short notes and derives their tags from content.

Bundles of records are imported in chunks; interrupted imports can be
resumed, retried or cancelled from the session they left behind.

Without a subcommand the HTTP server is started.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return rt.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = rt.logger.Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rt)
		},
	}

	rootCmd.PersistentFlags().StringVar(&rt.dbPath, "db", "", "database path (overrides DATABASE_PATH)")
	rootCmd.PersistentFlags().StringVar(&rt.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(
		newServeCmd(rt),
		newImportCmd(rt),
		newExportCmd(rt),
		newSessionsCmd(rt),
		newResumeCmd(rt),
		newSettingsCmd(rt),
	)
	return rootCmd
}

// Execute runs the root command against os.Args.
func Execute(version string) error {
	return NewRootCommand(version).Execute()
}

func (rt *cliState) setup() error {
	rt.cfg = config.NewConfig()
	if rt.dbPath != "" {
		rt.cfg.Database.Path = rt.dbPath
	}
	if rt.logLevel != "" {
		rt.cfg.Logging.Level = rt.logLevel
	}

	logger, err := logging.Setup(rt.cfg.Logging.Level, rt.cfg.Logging.Format)
	if err != nil {
		return err
	}
	rt.logger = logger
	return nil
}

// withApp opens the application for the duration of fn.
func (rt *cliState) withApp(fn func(app *entrypoint.App) error) (err error) {
	app, err := entrypoint.NewApp(rt.cfg, rt.logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(app)
}
