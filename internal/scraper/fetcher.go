package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"jobmate/acquisition-service/internal/model"
)

const (
	DefaultAdzunaBaseURL = "https://api.adzuna.com/v1/api/jobs"
	defaultPageSize      = 50
	httpTimeout          = 15 * time.Second
	maxErrorBody         = 512
)

// ErrNoCredentials is returned by FetchPage when ADZUNA_APP_ID or
// ADZUNA_APP_KEY is unset. It is permanent: retrying cannot help.
var ErrNoCredentials = errors.New("adzuna credentials not configured")

// StatusError is a non-200 answer from Adzuna.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("adzuna returned %d: %s", e.Code, e.Body)
}

// AdzunaFetcher fetches one result page at a time from the Adzuna public API.
type AdzunaFetcher struct {
	AppID    string
	AppKey   string
	Country  string // "fr", "gb", "us", …; a SourceConfig's Country wins
	BaseURL  string
	PageSize int
	client   *http.Client
	logger   *slog.Logger
}

// NewAdzunaFetcher constructs a fetcher with a shared HTTP client.
func NewAdzunaFetcher(appID, appKey, country string, logger *slog.Logger) *AdzunaFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdzunaFetcher{
		AppID:    appID,
		AppKey:   appKey,
		Country:  country,
		BaseURL:  DefaultAdzunaBaseURL,
		PageSize: defaultPageSize,
		client:   &http.Client{Timeout: httpTimeout},
		logger:   logger.With("component", "adzuna_fetcher"),
	}
}

// Configured reports whether credentials are present.
func (f *AdzunaFetcher) Configured() bool {
	return f.AppID != "" && f.AppKey != ""
}

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

// adzunaResult mirrors a single Adzuna job listing.
type adzunaResult struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaCompany  `json:"company"`
	Location     adzunaLocation `json:"location"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
}

type adzunaCompany struct {
	DisplayName string `json:"display_name"`
}

type adzunaLocation struct {
	DisplayName string `json:"display_name"`
}

// FetchPage returns the items of one result page, newest first. An empty
// slice means Adzuna has nothing past this page. Client errors other than 429
// are wrapped with backoff.Permanent so the caller does not retry them.
func (f *AdzunaFetcher) FetchPage(ctx context.Context, src model.SourceConfig, page int) ([]model.RawItem, error) {
	if !f.Configured() {
		return nil, backoff.Permanent(ErrNoCredentials)
	}
	country := src.Country
	if country == "" {
		country = f.Country
	}

	endpoint := fmt.Sprintf("%s/%s/search/%d", strings.TrimRight(f.BaseURL, "/"), url.PathEscape(country), page)

	params := url.Values{}
	params.Set("app_id", f.AppID)
	params.Set("app_key", f.AppKey)
	params.Set("results_per_page", strconv.Itoa(f.PageSize))
	params.Set("what", src.Query)
	if src.Location != "" {
		params.Set("where", src.Location)
	}
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		statusErr := &StatusError{Code: resp.StatusCode, Body: string(body)}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(statusErr)
		}
		return nil, statusErr
	}

	var apiResp adzunaResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	items := make([]model.RawItem, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		job := model.JobResult{
			ExternalID:   r.ID,
			Title:        r.Title,
			Company:      r.Company.DisplayName,
			Location:     r.Location.DisplayName,
			Description:  r.Description,
			SalaryMin:    r.SalaryMin,
			SalaryMax:    r.SalaryMax,
			SourceURL:    r.RedirectURL,
			ContractType: r.ContractType,
			PublishedAt:  r.Created,
		}
		if r.ContractTime != "" {
			job.Extra = map[string]any{"contractTime": r.ContractTime}
		}
		if job.SourceURL == "" && job.ExternalID != "" {
			job.SourceURL = fmt.Sprintf("https://www.adzuna.%s/details/%s", country, job.ExternalID)
		}

		payload, err := json.Marshal(job)
		if err != nil {
			f.logger.WarnContext(ctx, "cannot encode offer, skipping", "external_id", r.ID, "err", err)
			continue
		}
		items = append(items, model.RawItem{
			URL:     job.SourceURL,
			Title:   job.Title,
			Company: job.Company,
			Payload: payload,
		})
	}

	return items, nil
}
