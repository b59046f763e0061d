// Package model defines shared data structures for the acquisition service.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SearchConfig mirrors the search_configs table row relevant to acquisition.
type SearchConfig struct {
	ID          string
	UserID      string
	JobTitles   []string
	Locations   []string
	RedFlags    []string // exclusion terms; any match keeps the offer out of the downstream feed
	ProfilePath string   // resume file fingerprinted before each cycle
	MaxPages    int      // 0 means "use the service default"
}

// SearchContexts expands the config into one SourceConfig per (title × location) pair.
// A config without locations searches each title everywhere.
func (c SearchConfig) SearchContexts(country string) []SourceConfig {
	locations := c.Locations
	if len(locations) == 0 {
		locations = []string{""}
	}
	out := make([]SourceConfig, 0, len(c.JobTitles)*len(locations))
	for _, title := range c.JobTitles {
		if strings.TrimSpace(title) == "" {
			continue
		}
		for _, location := range locations {
			out = append(out, SourceConfig{
				Name:     "adzuna",
				Query:    strings.TrimSpace(title),
				Location: strings.TrimSpace(location),
				Country:  country,
			})
		}
	}
	return out
}

// SourceConfig is the explicit, per-run description of what to fetch and from where.
type SourceConfig struct {
	Name     string
	Query    string
	Location string
	Country  string
}

// SearchContext returns the dedup scope for runs over this source: the search term plus location,
// lower-cased so "Go Developer" and "go developer" share history.
func (s SourceConfig) SearchContext() string {
	q := strings.ToLower(strings.TrimSpace(s.Query))
	if s.Location == "" {
		return q
	}
	return q + " @ " + strings.ToLower(strings.TrimSpace(s.Location))
}

// JobResult is a normalised offer fetched from an external job board.
// It is converted to JSON and kept as the RawItem payload.
type JobResult struct {
	ExternalID   string         `json:"externalId"`
	Title        string         `json:"title"`
	Company      string         `json:"company"`
	Location     string         `json:"location"`
	Description  string         `json:"description"`
	SalaryMin    float64        `json:"salaryMin,omitempty"`
	SalaryMax    float64        `json:"salaryMax,omitempty"`
	SourceURL    string         `json:"sourceUrl"`
	ContractType string         `json:"contractType,omitempty"`
	PublishedAt  string         `json:"publishedAt,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// RawItem is one entry of a fetched page before classification.
type RawItem struct {
	URL     string
	Title   string
	Company string
	Payload json.RawMessage
}

// CapturedJob is a job posting already accounted for under one search context and profile version.
type CapturedJob struct {
	Identity        string          `json:"identity"`
	SearchContext   string          `json:"searchContext"`
	ProfileIdentity string          `json:"profileIdentity"`
	Title           string          `json:"title"`
	Company         string          `json:"company"`
	RawPayload      json.RawMessage `json:"rawPayload,omitempty"`
	ScoreData       json.RawMessage `json:"scoreData,omitempty"`
	CapturedAt      time.Time       `json:"capturedAt"`
}

// ErrInvalidJob is matched by every NewCapturedJob validation failure.
var ErrInvalidJob = errors.New("invalid captured job")

// NewCapturedJob converts a raw item into a CapturedJob, validating the fields the store relies on.
func NewCapturedJob(identity, searchContext, profileIdentity string, item RawItem, capturedAt time.Time) (CapturedJob, error) {
	switch {
	case identity == "":
		return CapturedJob{}, fmt.Errorf("%w: identity is required", ErrInvalidJob)
	case searchContext == "":
		return CapturedJob{}, fmt.Errorf("%w: search context is required", ErrInvalidJob)
	case profileIdentity == "":
		return CapturedJob{}, fmt.Errorf("%w: profile identity is required", ErrInvalidJob)
	}
	if len(item.Payload) > 0 && !json.Valid(item.Payload) {
		return CapturedJob{}, fmt.Errorf("%w: payload for %s is not valid JSON", ErrInvalidJob, identity)
	}
	return CapturedJob{
		Identity:        identity,
		SearchContext:   searchContext,
		ProfileIdentity: profileIdentity,
		Title:           strings.TrimSpace(item.Title),
		Company:         strings.TrimSpace(item.Company),
		RawPayload:      item.Payload,
		CapturedAt:      capturedAt.UTC(),
	}, nil
}

// ProfileIdentity is a registered candidate-profile fingerprint.
type ProfileIdentity struct {
	Fingerprint  string
	SourceRef    string
	RegisteredAt time.Time
}

// PageOutcome tells whether a page's fetch produced a classified result.
type PageOutcome string

const (
	PageOK          PageOutcome = "OK"
	PageFetchFailed PageOutcome = "FETCH_FAILED"
)

// LedgerEntry is one page's outcome within one acquisition run.
type LedgerEntry struct {
	RunID           string
	SearchContext   string
	ProfileIdentity string
	PageNumber      int
	ItemsSeen       int
	NewCount        int
	DuplicateCount  int
	InvalidCount    int
	Outcome         PageOutcome
	StopReason      string // empty unless this page ended the run
	MaxPages        int
	StartedAt       time.Time
	DurationMs      int64
}
