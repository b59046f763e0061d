package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"jobmate/acquisition-service/internal/profile"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint <profile-file>",
	Short: "Print a profile file's fingerprint",
	Long: `Print the fingerprint that identifies this profile version. Any byte change,
whitespace included, yields a new fingerprint and a fresh dedup history.

Examples:
  acquisition fingerprint resume.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := profile.FileProvider{Path: args[0]}.Content(context.Background())
		if err != nil {
			return err
		}
		if len(content) == 0 {
			return fmt.Errorf("%w: %s", profile.ErrEmptyProfile, args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), profile.Fingerprint(content))
		return nil
	},
}
