package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// DateFormat is the layout for calendar dates given on the command line.
const DateFormat = "2006-01-02"

// Day-first layouts used by Central American banks. 12-hour layouts come
// before 24-hour ones so a trailing AM/PM is never silently dropped.
var dateTimeLayouts = []string{
	"2/1/2006 3:04:05 PM",
	"2/1/2006 3:04 PM",
	"2/1/2006 15:04:05",
	"2/1/2006 15:04",
	"2/1/2006",
	"2-1-2006 3:04:05 PM",
	"2-1-2006 3:04 PM",
	"2-1-2006 15:04:05",
	"2-1-2006 15:04",
	"2-1-2006",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"Jan 2, 2006, 3:04 PM",
	"Jan 2, 2006, 15:04",
	"Jan 2, 2006 3:04 PM",
	"Jan 2, 2006 15:04",
	"Jan 2, 2006",
}

var (
	meridiemRe = regexp.MustCompile(`(?i)\b([ap])\.?\s?m\.?`)
	// Spanish month names and abbreviations; "set" is the Costa Rican spelling of September.
	spanishMonthRe = regexp.MustCompile(`(?i)\b(ene|feb|mar|abr|may|jun|jul|ago|sep|set|oct|nov|dic)[a-zé]*\.?`)
)

var spanishMonths = map[string]string{
	"ene": "Jan", "feb": "Feb", "mar": "Mar", "abr": "Apr", "may": "May", "jun": "Jun",
	"jul": "Jul", "ago": "Aug", "sep": "Sep", "set": "Sep", "oct": "Oct", "nov": "Nov", "dic": "Dec",
}

// ParseDateTime parses a bank-formatted date/time in loc and truncates it to the minute.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	cleaned := cleanDateTime(s)
	for _, layout := range dateTimeLayouts {
		t, err := time.ParseInLocation(layout, cleaned, loc)
		if err == nil {
			return t.Truncate(time.Minute), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func cleanDateTime(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = meridiemRe.ReplaceAllStringFunc(s, func(m string) string {
		return strings.ToUpper(m[:1]) + "M"
	})
	s = spanishMonthRe.ReplaceAllStringFunc(s, func(m string) string {
		return spanishMonths[strings.ToLower(m[:3])]
	})
	return s
}

// ParseDate parses a YYYY-MM-DD calendar date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateFormat, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}
