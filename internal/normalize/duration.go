package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Longest alternations first so "mins" is not read as "m" plus trailing text.
var unitTokenRE = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(heures?|hours?|hrs?|minutes?|mins?|mn|secondes?|seconds?|secs?|h|m|s)`)

// ParseDuration converts a free-text or colon-delimited duration into whole
// seconds. Unit-annotated tokens ("2m30s", "1 h 05 mn") win over the colon
// fallback; colon forms are read as h:m:s, m:s or h:m depending on part
// count and magnitude. Unparseable input yields 0, never an error.
func ParseDuration(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	if seconds, ok := parseUnitTokens(text); ok {
		return seconds
	}
	return parseColonDelimited(text)
}

func parseUnitTokens(text string) (int, bool) {
	matches := unitTokenRE.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return 0, false
	}

	total := 0.0
	for _, m := range matches {
		value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		switch strings.ToLower(m[2])[0] {
		case 'h':
			total += value * 3600
		case 'm':
			total += value * 60
		case 's':
			total += value
		}
	}
	if total < 0 {
		return 0, true
	}
	return int(math.Round(total)), true
}

func parseColonDelimited(text string) int {
	parts := strings.Split(text, ":")
	numbers := make([]float64, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(part), ",", "."), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
			return 0
		}
		numbers = append(numbers, f)
	}

	switch len(numbers) {
	case 3:
		return int(math.Round(numbers[0]*3600 + numbers[1]*60 + numbers[2]))
	case 2:
		// m:s when both parts look like sexagesimal components, h:m
		// otherwise (an operator export quirk: "1:30" meaning 1h30).
		if numbers[0] < 60 && numbers[1] < 60 {
			return int(math.Round(numbers[0]*60 + numbers[1]))
		}
		return int(math.Round(numbers[0]*3600 + numbers[1]*60))
	case 1:
		return int(math.Round(numbers[0]))
	default:
		return 0
	}
}

var (
	dateLayouts = []string{
		"2006-01-02",
		"02/01/2006",
		"02-01-2006",
		"2006/01/02",
		"02.01.2006",
	}
	timeLayouts = []string{
		"15:04:05",
		"15:04",
		"15h04m05s",
		"15h04",
	}
	timestampLayouts = []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"02/01/2006 15:04:05",
		"02/01/2006 15:04",
	}
)

// ParseEventTime combines a raw date and a raw clock time into a timestamp.
// The date alone may already carry a full timestamp, in which case the time
// part is optional.
func ParseEventTime(rawDate, rawTime string) (time.Time, bool) {
	rawDate = strings.TrimSpace(rawDate)
	rawTime = strings.TrimSpace(rawTime)
	if rawDate == "" {
		return time.Time{}, false
	}

	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, rawDate); err == nil {
			return ts, true
		}
	}

	for _, dl := range dateLayouts {
		day, err := time.Parse(dl, rawDate)
		if err != nil {
			continue
		}
		if rawTime == "" {
			return day, true
		}
		for _, tl := range timeLayouts {
			clock, err := time.Parse(tl, rawTime)
			if err != nil {
				continue
			}
			return time.Date(day.Year(), day.Month(), day.Day(),
				clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC), true
		}
		return day, true
	}
	return time.Time{}, false
}

// CallDurationSeconds derives an event's duration: an explicit duration
// field wins when it parses to a positive number, otherwise the difference
// between derived end and start timestamps is used when positive. Everything
// else yields 0.
func CallDurationSeconds(explicit, callDate, startTime, endDate, endTime string) int {
	if seconds := ParseDuration(explicit); seconds > 0 {
		return seconds
	}

	start, okStart := ParseEventTime(callDate, startTime)
	if !okStart {
		return 0
	}
	if endDate == "" {
		endDate = callDate
	}
	end, okEnd := ParseEventTime(endDate, endTime)
	if !okEnd {
		return 0
	}

	diff := end.Sub(start).Seconds()
	if diff <= 0 || math.IsNaN(diff) || math.IsInf(diff, 0) {
		return 0
	}
	return int(math.Round(diff))
}
