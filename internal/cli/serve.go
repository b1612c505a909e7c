package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrlokans/tagnotes/internal/entrypoint"
)

func newServeCmd(rt *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the HTTP server with the background task queue and the
maintenance scheduler.

Configuration is read from the environment, for example:
  PORT=8190 DATABASE_PATH=./tagnotes.db IMPORT_CHUNK_SIZE=500 tagnotes serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rt)
		},
	}
}

func runServe(rt *cliState) error {
	return entrypoint.Run(rt.cfg, rt.logger, rt.version)
}
