// Package scraper implements job offer fetching, filtering and the acquisition
// cycle for stored search configs.
package scraper

import (
	"encoding/json"
	"strings"

	"jobmate/acquisition-service/internal/model"
)

// ContainsRedFlag returns true if any red flag term appears (case-insensitive)
// anywhere in the combined title + company + description text.
func ContainsRedFlag(title, company, description string, redFlags []string) bool {
	if len(redFlags) == 0 {
		return false
	}
	combined := strings.ToLower(title + " " + company + " " + description)
	for _, flag := range redFlags {
		flag = strings.TrimSpace(flag)
		if flag == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(flag)) {
			return true
		}
	}
	return false
}

// FilterRedFlags splits captured jobs into those to announce downstream and
// those hit by a red flag. Flagged jobs stay captured so they are never
// fetched as new again.
func FilterRedFlags(jobs []model.CapturedJob, redFlags []string) (kept, flagged []model.CapturedJob) {
	if len(redFlags) == 0 {
		return jobs, nil
	}
	for _, j := range jobs {
		var offer model.JobResult
		_ = json.Unmarshal(j.RawPayload, &offer) // payload was validated on capture
		if ContainsRedFlag(j.Title, j.Company, offer.Description, redFlags) {
			flagged = append(flagged, j)
			continue
		}
		kept = append(kept, j)
	}
	return kept, flagged
}
