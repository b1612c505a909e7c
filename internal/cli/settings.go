package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mrlokans/tagnotes/internal/entrypoint"
)

type normalizationOptions struct {
	user          string
	caseSensitive bool
	removeAccents bool
}

func newSettingsCmd(rt *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change user settings",
	}

	opts := &normalizationOptions{}
	normalizationCmd := &cobra.Command{
		Use:   "normalization",
		Short: "Show or change tag normalization rules",
		Long: `Show the tag normalization rules, or change them with flags.

Changing a rule bumps the rules version. Sessions keep the rules they
started with, so resumed imports are not affected.

Examples:
  tagnotes settings normalization
  tagnotes settings normalization --remove-accents=true`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withApp(func(app *entrypoint.App) error {
				return runNormalization(cmd, app, opts)
			})
		},
	}
	normalizationCmd.Flags().StringVarP(&opts.user, "user", "u", "", "settings owner (default user if empty)")
	normalizationCmd.Flags().BoolVar(&opts.caseSensitive, "case-sensitive", false, "compare tags case-sensitively")
	normalizationCmd.Flags().BoolVar(&opts.removeAccents, "remove-accents", false, "strip diacritics before comparing tags")

	cmd.AddCommand(normalizationCmd)
	return cmd
}

func runNormalization(cmd *cobra.Command, app *entrypoint.App, opts *normalizationOptions) error {
	user, err := app.ResolveUser(opts.user)
	if err != nil {
		return err
	}
	current, err := app.Settings.GetNormalizationSettings(user.ID)
	if err != nil {
		return fmt.Errorf("load normalization settings: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("case-sensitive") || flags.Changed("remove-accents") {
		caseSensitive, removeAccents := current.CaseSensitive, current.RemoveAccents
		if flags.Changed("case-sensitive") {
			caseSensitive = opts.caseSensitive
		}
		if flags.Changed("remove-accents") {
			removeAccents = opts.removeAccents
		}
		current, err = app.Settings.SetNormalizationSettings(user.ID, caseSensitive, removeAccents)
		if err != nil {
			return fmt.Errorf("update normalization settings: %w", err)
		}
		app.Audit.LogSettings(user.ID, "normalization_update",
			fmt.Sprintf("caseSensitive=%t removeAccents=%t version=%d", current.CaseSensitive, current.RemoveAccents, current.Version))
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "caseSensitive: %t\n", current.CaseSensitive)
	fmt.Fprintf(out, "removeAccents: %t\n", current.RemoveAccents)
	fmt.Fprintf(out, "version:       %d\n", current.Version)
	return nil
}
