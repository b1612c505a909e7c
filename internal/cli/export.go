package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrlokans/tagnotes/internal/entrypoint"
	"github.com/mrlokans/tagnotes/internal/exporters"
	"github.com/mrlokans/tagnotes/internal/importers"
)

type exportOptions struct {
	user    string
	version string
	out     string
}

func newExportCmd(rt *cliState) *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export records as an import bundle",
		Long: `Export all records of a user in the bundle format accepted by "tagnotes import".

Without --out the bundle is printed to stdout. If --out names a directory,
a timestamped file is created inside it.

Examples:
  tagnotes export > backup.json
  tagnotes export --version 1.0 --out ./exports/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(func(app *entrypoint.App) error {
				return runExport(cmd, app, opts)
			})
		},
	}

	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "owner of the exported records (default user if empty)")
	cmd.Flags().StringVar(&opts.version, "version", string(importers.Version2), "bundle version: 1.0 or 2.0")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output file or directory")
	return cmd
}

func runExport(cmd *cobra.Command, app *entrypoint.App, opts *exportOptions) error {
	user, err := app.ResolveUser(opts.user)
	if err != nil {
		return err
	}

	bundle, err := app.Exporter.Export(user.ID, importers.Version(opts.version))
	records := 0
	if bundle != nil {
		records = len(bundle.Records)
	}
	app.Audit.LogExport(user.ID, opts.version, records, err)
	if err != nil {
		return err
	}

	if opts.out == "" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(bundle)
	}

	path := opts.out
	if isDirTarget(path) {
		path = filepath.Join(path, exporters.FileName(user.Username, time.Now()))
	}
	if err := exporters.WriteFile(bundle, path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d records to %s\n", records, path)
	return nil
}

// isDirTarget reports whether path names a directory, existing or marked by a
// trailing separator.
func isDirTarget(path string) bool {
	if strings.HasSuffix(path, "/") || strings.HasSuffix(path, string(os.PathSeparator)) {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
