package identity

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// WWWPolicy says how a domain's canonical host treats the "www." label.
type WWWPolicy string

const (
	WWWKeep  WWWPolicy = ""
	WWWAdd   WWWPolicy = "add"
	WWWStrip WWWPolicy = "strip"
)

// Rule is one row of the canonicalization table. Domain is matched against the
// request host with any leading "www." removed.
type Rule struct {
	Domain         string    `yaml:"domain"`
	WWW            WWWPolicy `yaml:"www"`
	ForceHTTPS     bool      `yaml:"force_https"`
	TrackingParams []string  `yaml:"tracking_params"`
	StripFragment  bool      `yaml:"strip_fragment"`
}

func (r Rule) canonicalHost(host string) string {
	switch r.WWW {
	case WWWAdd:
		return "www." + bareHost(host)
	case WWWStrip:
		return bareHost(host)
	default:
		return host
	}
}

// commonTracking are campaign parameters no job board needs to identify a posting.
var commonTracking = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "gclid", "fbclid"}

// DefaultRules is the built-in table used when no rules file is configured.
func DefaultRules() []Rule {
	return []Rule{
		{
			Domain:         "linkedin.com",
			WWW:            WWWAdd,
			ForceHTTPS:     true,
			TrackingParams: append([]string{"refId", "trackingId", "trk", "lipi", "eBP", "position", "pageNum"}, commonTracking...),
			StripFragment:  true,
		},
		{
			Domain:         "indeed.com",
			WWW:            WWWAdd,
			ForceHTTPS:     true,
			TrackingParams: append([]string{"from", "tk", "advn", "vjs"}, commonTracking...),
		},
		{
			Domain:         "glassdoor.com",
			WWW:            WWWAdd,
			ForceHTTPS:     true,
			TrackingParams: append([]string{"src", "srs", "guid", "pos", "ao"}, commonTracking...),
		},
		{
			Domain:         "adzuna.fr",
			WWW:            WWWAdd,
			ForceHTTPS:     true,
			TrackingParams: append([]string{"se", "v"}, commonTracking...),
		},
		{
			Domain:         "welcometothejungle.com",
			WWW:            WWWAdd,
			ForceHTTPS:     true,
			TrackingParams: append([]string{"q", "o"}, commonTracking...),
		},
		{
			Domain:     "jobs.ch",
			WWW:        WWWAdd,
			ForceHTTPS: true,
		},
		{
			Domain:         "example.com",
			WWW:            WWWAdd,
			ForceHTTPS:     true,
			TrackingParams: commonTracking,
		},
	}
}

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML rules table:
//
//	rules:
//	  - domain: linkedin.com
//	    www: add
//	    force_https: true
//	    tracking_params: [trk, refId]
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a YAML rules table.
func ParseRules(data []byte) ([]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	for i, r := range f.Rules {
		if strings.TrimSpace(r.Domain) == "" {
			return nil, fmt.Errorf("rule %d: domain is required", i)
		}
		switch r.WWW {
		case WWWKeep, WWWAdd, WWWStrip:
		default:
			return nil, fmt.Errorf("rule %d (%s): www must be %q or %q, got %q", i, r.Domain, WWWAdd, WWWStrip, r.WWW)
		}
	}
	return f.Rules, nil
}
