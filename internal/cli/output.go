package cli

import (
	"fmt"
	"io"

	"jobmate/acquisition-service/internal/acquisition"
	"jobmate/acquisition-service/internal/ledger"
	"jobmate/acquisition-service/internal/model"
	"jobmate/acquisition-service/internal/scraper"
)

func printSummary(w io.Writer, configID string, s scraper.CycleSummary) {
	fmt.Fprintf(w, "config %s: runs=%d new=%d flagged=%d duplicates=%d fetch_failures=%d\n",
		configID, s.Runs, s.NewJobs, s.Flagged, s.Duplicates, s.FetchFailures)
}

func printResult(w io.Writer, res *acquisition.RunResult) {
	fmt.Fprintf(w, "Run %s\n", res.RunID)
	fmt.Fprintf(w, "═══════════════════════════════════════\n")
	fmt.Fprintf(w, "Search context:  %s\n", res.SearchContext)
	fmt.Fprintf(w, "Profile:         %s\n", res.ProfileIdentity)
	fmt.Fprintf(w, "Pages completed: %d\n", res.CompletedPages)
	fmt.Fprintf(w, "Stopped:         %s\n", res.StoppedReason)
	if res.Err != nil {
		fmt.Fprintf(w, "Cause:           %v\n", res.Err)
	}
	fmt.Fprintf(w, "New: %d  Duplicates: %d  Invalid: %d\n", len(res.NewItems), res.DuplicateCount, res.InvalidCount)
	for _, j := range res.NewItems {
		fmt.Fprintf(w, "  + %s  %s (%s)\n", j.Identity, j.Title, j.Company)
	}
}

func printSavings(w io.Writer, r ledger.SavingsReport) {
	fmt.Fprintf(w, "Acquisition savings\n")
	fmt.Fprintf(w, "═══════════════════════════════════════\n")
	fmt.Fprintf(w, "Runs:               %d\n", r.Runs)
	fmt.Fprintf(w, "Pages fetched:      %d\n", r.PagesFetched)
	fmt.Fprintf(w, "Pages avoided:      %d\n", r.PagesAvoided)
	fmt.Fprintf(w, "Failed pages:       %d\n", r.FailedPages)
	fmt.Fprintf(w, "Items seen:         %d\n", r.ItemsSeen)
	fmt.Fprintf(w, "New items:          %d\n", r.NewItems)
	fmt.Fprintf(w, "Duplicates skipped: %d\n", r.DuplicatesSkipped)
	fmt.Fprintf(w, "Estimated savings:  $%.4f\n", r.EstimatedSavings)
}

func printEntries(w io.Writer, entries []model.LedgerEntry) {
	fmt.Fprintf(w, "Run %s (%s)\n", entries[0].RunID, entries[0].SearchContext)
	fmt.Fprintf(w, "═══════════════════════════════════════\n")
	fmt.Fprintf(w, "%-5s %-12s %6s %6s %6s %8s  %s\n", "PAGE", "OUTCOME", "SEEN", "NEW", "DUP", "INVALID", "STOP")
	for _, e := range entries {
		fmt.Fprintf(w, "%-5d %-12s %6d %6d %6d %8d  %s\n",
			e.PageNumber, e.Outcome, e.ItemsSeen, e.NewCount, e.DuplicateCount, e.InvalidCount, e.StopReason)
	}
}
