package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// HistoricalDate is a publication date on the astronomical year line, where
// 1 BCE = 0 and 2 BCE = -1, so arithmetic is continuous across the era
// boundary. CE/BCE conversion happens only at parse/format boundaries.
type HistoricalDate struct {
	Year        int  `json:"year"` // astronomical
	Month       int  `json:"month,omitempty"`
	Day         int  `json:"day,omitempty"`
	Approximate bool `json:"approximate,omitempty"` // "c. 380 BCE"
}

var historicalDatePattern = regexp.MustCompile(`^(c\.\s*)?(\d+)\s*(BCE|BC|CE|AD)?$`)

// ParseHistoricalDate parses strings like "380 BCE", "c. 1641", "1781 CE".
// A bare year is CE.
func ParseHistoricalDate(s string) (HistoricalDate, error) {
	trimmed := strings.TrimSpace(s)
	match := historicalDatePattern.FindStringSubmatch(trimmed)
	if match == nil {
		return HistoricalDate{}, fmt.Errorf("unrecognized historical date %q", s)
	}

	year, err := strconv.Atoi(match[2])
	if err != nil || year == 0 {
		return HistoricalDate{}, fmt.Errorf("invalid year in historical date %q", s)
	}

	date := HistoricalDate{Approximate: match[1] != ""}
	switch match[3] {
	case "BCE", "BC":
		date.Year = -(year - 1)
	default:
		date.Year = year
	}
	return date, nil
}

// EraYear returns the display year and era label for the date
func (d HistoricalDate) EraYear() (int, string) {
	if d.Year <= 0 {
		return -d.Year + 1, "BCE"
	}
	return d.Year, "CE"
}

// String formats the date for presentation, e.g. "c. 380 BCE" or "1641 CE"
func (d HistoricalDate) String() string {
	year, era := d.EraYear()
	s := fmt.Sprintf("%d %s", year, era)
	if d.Approximate {
		s = "c. " + s
	}
	return s
}

// Before reports whether d precedes other on the astronomical year line
func (d HistoricalDate) Before(other HistoricalDate) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}
