package common

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Crawl frequency tags accepted on site monitoring settings.
const (
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

var frequencySpecs = map[string]string{
	FrequencyDaily:   "@daily",
	FrequencyWeekly:  "@weekly",
	FrequencyMonthly: "@monthly",
}

// IsValidFrequency reports whether tag is a recognized crawl frequency.
func IsValidFrequency(tag string) bool {
	_, ok := frequencySpecs[tag]
	return ok
}

// NextScheduledCrawl computes the next crawl time after from for the given
// frequency tag using cron schedule semantics.
func NextScheduledCrawl(frequency string, from time.Time) (time.Time, error) {
	spec, ok := frequencySpecs[frequency]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown crawl frequency %q", frequency)
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse schedule for frequency %q: %w", frequency, err)
	}
	return schedule.Next(from), nil
}
