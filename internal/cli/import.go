package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mrlokans/tagnotes/internal/audit"
	"github.com/mrlokans/tagnotes/internal/entrypoint"
	"github.com/mrlokans/tagnotes/internal/importers"
)

type importOptions struct {
	user      string
	chunkSize int
	reportDir string
}

func newImportCmd(rt *cliState) *cobra.Command {
	opts := &importOptions{}

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a record bundle",
		Long: `Import a JSON record bundle (version 1.0 or 2.0).

Records are committed in chunks. If the import stops part way, the printed
session ID can be passed to "tagnotes resume". Use "-" to read from stdin.

Examples:
  tagnotes import export.json
  tagnotes import --user alice --chunk-size 100 export.json
  tagnotes import --report-dir ./reports export.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.chunkSize > 0 {
				rt.cfg.Import.ChunkSize = opts.chunkSize
			}
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			return rt.withApp(func(app *entrypoint.App) error {
				return runImport(cmd, app, opts, raw)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "owner of the imported records (default user if empty)")
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 0, "records per transaction (overrides IMPORT_CHUNK_SIZE)")
	cmd.Flags().StringVar(&opts.reportDir, "report-dir", "", "write the import report as JSON to this directory")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return raw, nil
}

func runImport(cmd *cobra.Command, app *entrypoint.App, opts *importOptions, raw []byte) error {
	user, err := app.ResolveUser(opts.user)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := app.Coordinator.Import(ctx, user.ID, raw)
	out := cmd.OutOrStdout()

	var report any = result
	var failure *importers.FailureError
	switch {
	case runErr == nil:
		printResult(out, result)
	case errors.As(runErr, &failure):
		report = failure.Response
		printFailure(out, failure.Response)
	default:
		return fmt.Errorf("import: %w", runErr)
	}

	if opts.reportDir != "" {
		path, err := audit.NewReportArchive(opts.reportDir).Save(reportName(result, failure), report)
		if err != nil {
			return fmt.Errorf("save import report: %w", err)
		}
		fmt.Fprintf(out, "Report written to %s\n", path)
	}

	if runErr != nil {
		return fmt.Errorf("import failed: %s", importers.ErrorCode(runErr))
	}
	return nil
}

// reportName names a report after its session. Rejected bundles have none.
func reportName(result *importers.ImportResult, failure *importers.FailureError) string {
	switch {
	case result != nil:
		return "import-" + result.SessionID
	case failure != nil && failure.Response.SessionID != "":
		return "import-" + failure.Response.SessionID
	}
	return ""
}

func printResult(w io.Writer, result *importers.ImportResult) {
	fmt.Fprintf(w, "Session:  %s\n", result.SessionID)
	fmt.Fprintf(w, "Status:   %s\n", result.Status)
	fmt.Fprintf(w, "Imported: %d\n", result.Imported)
	fmt.Fprintf(w, "Skipped:  %d\n", result.Skipped)
	fmt.Fprintf(w, "Failed:   %d\n", result.Failed)
	for _, msg := range result.Errors {
		fmt.Fprintf(w, "  - %s\n", msg)
	}
}

func printFailure(w io.Writer, resp *importers.FailureResponse) {
	if resp.SessionID != "" {
		fmt.Fprintf(w, "Session:  %s\n", resp.SessionID)
	}
	fmt.Fprintf(w, "Error:    %s (%s)\n", resp.ErrorSummary.Message, resp.Code)
	for _, entry := range resp.Errors {
		if entry.RecordIndex >= 0 {
			fmt.Fprintf(w, "  - record %d: %s: %s\n", entry.RecordIndex, entry.ErrorCode, entry.Message)
		} else {
			fmt.Fprintf(w, "  - %s: %s\n", entry.ErrorCode, entry.Message)
		}
	}
	for _, s := range resp.RepairSuggestions {
		fmt.Fprintf(w, "Hint:     %s\n", s.Description)
	}
	if resp.CanResume && resp.ResumeInfo != nil {
		fmt.Fprintf(w, "Resume with: tagnotes resume %s (%d records remaining)\n",
			resp.SessionID, resp.ResumeInfo.RemainingRecords)
	}
}
