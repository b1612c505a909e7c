package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrlokans/tagnotes/internal/entrypoint"
	"github.com/mrlokans/tagnotes/internal/importers"
)

type sessionsOptions struct {
	user  string
	limit int
}

func newSessionsCmd(rt *cliState) *cobra.Command {
	opts := &sessionsOptions{}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List or inspect import sessions",
		Long: `List import sessions that can be resumed, or show one session with its error log.

Examples:
  tagnotes sessions
  tagnotes sessions show 3f0c2a9e-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(func(app *entrypoint.App) error {
				return runListSessions(cmd, app, opts)
			})
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.user, "user", "u", "", "session owner (default user if empty)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "max results")

	showCmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session and its error log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(func(app *entrypoint.App) error {
				return runShowSession(cmd, app, opts, args[0])
			})
		},
	}
	cmd.AddCommand(showCmd)
	return cmd
}

func runListSessions(cmd *cobra.Command, app *entrypoint.App, opts *sessionsOptions) error {
	user, err := app.ResolveUser(opts.user)
	if err != nil {
		return err
	}
	infos, err := app.Coordinator.Resumable(cmd.Context(), user.ID, opts.limit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No resumable sessions.")
		return nil
	}

	fmt.Fprintf(out, "Resumable sessions (%d):\n\n", len(infos))
	for _, info := range infos {
		fmt.Fprintf(out, "- %s [%s] %d remaining", info.SessionID, info.Status, info.RemainingRecords)
		if info.EstimatedTime != "" {
			fmt.Fprintf(out, ", about %s", info.EstimatedTime)
		}
		fmt.Fprintf(out, " (updated %s)\n", info.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runShowSession(cmd *cobra.Command, app *entrypoint.App, opts *sessionsOptions, sessionID string) error {
	user, err := app.ResolveUser(opts.user)
	if err != nil {
		return err
	}
	report, err := app.Coordinator.Session(cmd.Context(), user.ID, sessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	printSessionReport(cmd.OutOrStdout(), report)
	return nil
}

func printSessionReport(w io.Writer, r *importers.SessionReport) {
	fmt.Fprintf(w, "Session:   %s\n", r.SessionID)
	fmt.Fprintf(w, "Status:    %s\n", r.Status)
	fmt.Fprintf(w, "Version:   %s\n", r.SourceVersion)
	fmt.Fprintf(w, "Progress:  %d/%d (imported %d, skipped %d, failed %d)\n",
		r.ProcessedRecords, r.TotalRecords, r.ImportedRecords, r.SkippedRecords, r.FailedRecords)
	fmt.Fprintf(w, "Chunk:     %d records\n", r.ChunkSize)
	fmt.Fprintf(w, "Rules:     caseSensitive=%t removeAccents=%t (v%d)\n",
		r.CaseSensitive, r.RemoveAccents, r.NormalizationVersion)
	if r.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", r.LastError)
	}
	if r.CanResume && r.ResumeInfo != nil {
		fmt.Fprintf(w, "Resumable: %d records remaining\n", r.ResumeInfo.RemainingRecords)
	}

	if len(r.Errors) == 0 {
		return
	}
	fmt.Fprintf(w, "\nErrors (%d):\n", r.ErrorSummary.TotalErrors)
	for _, e := range r.Errors {
		fmt.Fprintf(w, "- #%d [%s] %s: %s\n", e.RecordIndex, e.Severity, e.ErrorCode, e.Message)
	}
}
