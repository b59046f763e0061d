package acquisition

import (
	"errors"

	"jobmate/acquisition-service/internal/model"
)

// StopReason says why a run stopped paginating.
type StopReason string

const (
	StopEarlyExit    StopReason = "EARLY_EXIT"    // a non-empty page held only known postings
	StopExhausted    StopReason = "EXHAUSTED"     // the source returned an empty page
	StopMaxPages     StopReason = "MAX_PAGES"     // page budget spent
	StopFetchFailure StopReason = "FETCH_FAILURE" // a page could not be fetched after retries
	StopStoreFailure StopReason = "STORE_FAILURE" // the existence store was unavailable
	StopCanceled     StopReason = "CANCELED"      // caller cancelled between pages
)

// ErrInvalidRequest is returned before any fetch when a RunRequest is unusable.
var ErrInvalidRequest = errors.New("invalid acquisition request")

// RunRequest is everything one run needs. Nothing is read from shared state.
type RunRequest struct {
	SearchContext   string // defaults to Source.SearchContext()
	ProfileIdentity string
	Source          model.SourceConfig
	MaxPages        int
}

// RunResult is the structured outcome of a run. NewItems holds only jobs this
// run inserted, in page order.
type RunResult struct {
	RunID           string
	SearchContext   string
	ProfileIdentity string
	CompletedPages  int
	StoppedReason   StopReason
	NewItems        []model.CapturedJob
	DuplicateCount  int
	InvalidCount    int
	// Err is the cause behind FETCH_FAILURE, STORE_FAILURE or CANCELED.
	Err error
}

// PageStats is the classification tally of one page.
type PageStats struct {
	ItemsSeen int
	New       int
	Duplicate int
	Invalid   int
}

// decide applies the early-exit rule to a classified page. An empty reason
// means fetch the next page.
func decide(s PageStats, page, maxPages int) StopReason {
	switch {
	case s.ItemsSeen == 0:
		return StopExhausted
	case s.New == 0 && s.Duplicate > 0:
		return StopEarlyExit
	case page >= maxPages:
		return StopMaxPages
	default:
		return ""
	}
}
