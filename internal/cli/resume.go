package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrlokans/tagnotes/internal/entrypoint"
	"github.com/mrlokans/tagnotes/internal/importers"
)

type resumeOptions struct {
	user       string
	retry      bool
	cancel     bool
	pause      bool
	skipErrors bool
	from       int
}

func newResumeCmd(rt *cliState) *cobra.Command {
	opts := &resumeOptions{}

	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume, retry or cancel an import session",
		Long: `Continue an interrupted import from where it stopped.

By default the session is resumed after its last committed chunk. --retry
restarts a failed session from the failing chunk. --cancel ends a session
and discards its staged records.

Examples:
  tagnotes resume 3f0c2a9e-...
  tagnotes resume --skip-errors 3f0c2a9e-...
  tagnotes resume --from 1500 3f0c2a9e-...
  tagnotes resume --cancel 3f0c2a9e-...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := opts.request(cmd, args[0])
			if err != nil {
				return err
			}
			return rt.withApp(func(app *entrypoint.App) error {
				return runResume(cmd, app, opts, req)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "session owner (default user if empty)")
	cmd.Flags().BoolVar(&opts.retry, "retry", false, "retry a failed session")
	cmd.Flags().BoolVar(&opts.cancel, "cancel", false, "cancel the session")
	cmd.Flags().BoolVar(&opts.pause, "pause", false, "pause the session")
	cmd.Flags().BoolVar(&opts.skipErrors, "skip-errors", false, "skip the records of failed chunks")
	cmd.Flags().IntVar(&opts.from, "from", 0, "record index to continue from")
	cmd.MarkFlagsMutuallyExclusive("retry", "cancel", "pause")
	return cmd
}

func (o *resumeOptions) request(cmd *cobra.Command, sessionID string) (importers.RecoveryRequest, error) {
	req := importers.RecoveryRequest{
		Action:     importers.ActionResume,
		SessionID:  sessionID,
		SkipErrors: o.skipErrors,
	}
	switch {
	case o.retry:
		req.Action = importers.ActionRetry
	case o.cancel:
		req.Action = importers.ActionCancel
	case o.pause:
		req.Action = importers.ActionPause
	}
	if cmd.Flags().Changed("from") {
		if o.from < 0 {
			return req, fmt.Errorf("--from must not be negative, got %d", o.from)
		}
		from := o.from
		req.StartFromIndex = &from
	}
	return req, nil
}

func runResume(cmd *cobra.Command, app *entrypoint.App, opts *resumeOptions, req importers.RecoveryRequest) error {
	user, err := app.ResolveUser(opts.user)
	if err != nil {
		return err
	}
	req.UserID = user.ID

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := app.Coordinator.Recover(ctx, req)
	out := cmd.OutOrStdout()

	var failure *importers.FailureError
	switch {
	case err == nil:
		printResult(out, result)
		return nil
	case errors.As(err, &failure):
		printFailure(out, failure.Response)
		return fmt.Errorf("%s failed: %s", req.Action, importers.ErrorCode(err))
	}
	return fmt.Errorf("%s session %s: %w", req.Action, req.SessionID, err)
}
