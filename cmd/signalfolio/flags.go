package main

import (
	"strings"
	"time"

	"signalfolio/internal/config"
	"signalfolio/internal/engine"
)

// parseDate accepts YYYY-MM-DD; an empty value is the zero time.
func parseDate(field, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, &engine.ConfigurationError{Field: field, Value: value, Reason: "must be YYYY-MM-DD"}
	}
	return t, nil
}

// expandUniverses resolves every name, keeping first-seen order without duplicates.
func expandUniverses(names []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, name := range names {
		for _, u := range config.ExpandUniverse(strings.TrimSpace(name)) {
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}
