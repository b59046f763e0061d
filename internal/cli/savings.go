package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"jobmate/acquisition-service/internal/ledger"
)

var (
	savingsSearchContext string
	savingsSince         string
	savingsRun           string
)

var savingsCmd = &cobra.Command{
	Use:   "savings",
	Short: "Show pages and extractions avoided by early exit",
	Long: `Aggregate the acquisition ledger and estimate what early exit saved.

Examples:
  acquisition savings
  acquisition savings --since 7d
  acquisition savings --search-context "go developer @ paris" --since 720h
  acquisition savings --run 3b6c…   # page-by-page ledger of one run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := parseLookback(savingsSince, time.Now())
		if err != nil {
			return err
		}

		ctx := context.Background()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.close()

		if savingsRun != "" {
			entries, err := a.ledger.Entries(ctx, savingsRun)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return fmt.Errorf("no ledger entries for run %s", savingsRun)
			}
			printEntries(cmd.OutOrStdout(), entries)
			return nil
		}

		report, err := a.ledger.Savings(ctx, ledger.SavingsQuery{
			SearchContext: savingsSearchContext,
			Since:         since,
		}, a.costs())
		if err != nil {
			return err
		}
		printSavings(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	savingsCmd.Flags().StringVar(&savingsSearchContext, "search-context", "", "restrict to one search context")
	savingsCmd.Flags().StringVar(&savingsSince, "since", "30d", "time period (e.g., '24h', '7d', '30d')")
	savingsCmd.Flags().StringVar(&savingsRun, "run", "", "show the ledger of one run instead of the aggregate")
}

// parseLookback accepts Go durations plus a "<n>d" day shorthand.
func parseLookback(s string, now time.Time) (time.Time, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		var n int
		if _, err := fmt.Sscanf(days, "%d", &n); err == nil && n >= 0 {
			return now.Add(-time.Duration(n) * 24 * time.Hour), nil
		}
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid duration: %s", s)
	}
	return now.Add(-d), nil
}
