package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	existsSearchContext string
	existsProfile       string
)

var existsCmd = &cobra.Command{
	Use:   "exists <url>",
	Short: "Check whether a posting is already captured",
	Long: `Normalize a posting URL and report whether it is captured for the search
context and profile fingerprint. Exits 0 either way; the answer is printed.

Examples:
  acquisition exists "http://example.com/job/1/" --search-context "go developer @ paris" --profile 9f86d0…`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		id, err := a.normalizer.Normalize(args[0])
		if err != nil {
			return err
		}
		ok, err := a.controller.ExistsForContext(ctx, id, existsSearchContext, existsProfile)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%t\n", id, ok)
		return nil
	},
}

func init() {
	existsCmd.Flags().StringVar(&existsSearchContext, "search-context", "", "search context key")
	existsCmd.Flags().StringVar(&existsProfile, "profile", "", "profile fingerprint")
	_ = existsCmd.MarkFlagRequired("search-context")
	_ = existsCmd.MarkFlagRequired("profile")
}
