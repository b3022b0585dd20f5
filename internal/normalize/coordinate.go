package normalize

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Axis identifies which coordinate axis a raw value belongs to.
type Axis string

const (
	AxisLatitude  Axis = "latitude"
	AxisLongitude Axis = "longitude"
)

// bound returns the maximum absolute value allowed on the axis.
func (a Axis) bound() float64 {
	if a == AxisLongitude {
		return 180
	}
	return 90
}

var (
	numericTokenRE = regexp.MustCompile(`[-+]?\d+(?:[.,]\d+)?`)

	// Whole-word cardinal markers, matched before the single-letter fallback
	// so that site labels like "NORD FOIRE" still resolve a direction.
	latPositiveWordRE  = regexp.MustCompile(`(?i)(?:^|[^a-zA-Z])(?:n|nord|north)(?:$|[^a-zA-Z])`)
	latNegativeWordRE  = regexp.MustCompile(`(?i)(?:^|[^a-zA-Z])(?:s|sud|south)(?:$|[^a-zA-Z])`)
	longPositiveWordRE = regexp.MustCompile(`(?i)(?:^|[^a-zA-Z])(?:e|est|east)(?:$|[^a-zA-Z])`)
	longNegativeWordRE = regexp.MustCompile(`(?i)(?:^|[^a-zA-Z])(?:w|o|ouest|west)(?:$|[^a-zA-Z])`)

	dmsGlyphs = "°º'′\"″"
)

// Coordinate converts a raw latitude or longitude representation into a
// signed decimal-degree string. Accepted inputs: numeric values, plain
// decimals (dot or comma separator), DMS notation, and cardinal-letter
// annotated forms. Malformed or out-of-bounds input yields ok == false,
// never a default coordinate. The function is total: it does not panic on
// any input.
func Coordinate(raw interface{}, axis Axis) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case float64:
		return formatDegrees(v, axis)
	case float32:
		return formatDegrees(float64(v), axis)
	case int:
		return formatDegrees(float64(v), axis)
	case int64:
		return formatDegrees(float64(v), axis)
	case string:
		return coordinateFromString(v, axis)
	default:
		return "", false
	}
}

func coordinateFromString(raw string, axis Axis) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	tokens := numericTokenRE.FindAllString(raw, -1)
	if len(tokens) == 0 {
		return "", false
	}

	letterSign := cardinalSign(raw, axis)
	explicitSign := 0
	switch tokens[0][0] {
	case '-':
		explicitSign = -1
	case '+':
		explicitSign = 1
	}

	values := make([]float64, 0, len(tokens))
	for _, token := range tokens {
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimPrefix(token, "+"), ",", "."), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return "", false
		}
		values = append(values, f)
	}

	isDMS := strings.ContainsAny(raw, dmsGlyphs) ||
		(len(values) >= 2 && letterSign != 0) ||
		len(values) >= 3

	var degrees float64
	if isDMS {
		degrees = math.Abs(values[0])
		if len(values) > 1 {
			degrees += math.Abs(values[1]) / 60
		}
		if len(values) > 2 {
			degrees += math.Abs(values[2]) / 3600
		}
		// An explicit leading sign always takes priority over the letter.
		switch {
		case explicitSign != 0:
			degrees *= float64(explicitSign)
		case letterSign < 0:
			degrees = -degrees
		}
	} else {
		degrees = values[0]
		if explicitSign == 0 && letterSign < 0 {
			degrees = -math.Abs(degrees)
		}
	}

	return formatDegrees(degrees, axis)
}

// cardinalSign detects a direction letter in the raw text: +1 for N/E, -1
// for S/W/O, 0 when none is present. Whole-word matches win over the
// single-letter fallback.
func cardinalSign(raw string, axis Axis) int {
	positiveRE, negativeRE := latPositiveWordRE, latNegativeWordRE
	positiveLetters, negativeLetters := "nN", "sS"
	if axis == AxisLongitude {
		positiveRE, negativeRE = longPositiveWordRE, longNegativeWordRE
		positiveLetters, negativeLetters = "eE", "wWoO"
	}

	// Strip the numeric tokens so sign characters inside numbers are not
	// mistaken for direction markers.
	letters := numericTokenRE.ReplaceAllString(raw, " ")

	switch {
	case negativeRE.MatchString(letters):
		return -1
	case positiveRE.MatchString(letters):
		return 1
	case strings.ContainsAny(letters, negativeLetters):
		return -1
	case strings.ContainsAny(letters, positiveLetters):
		return 1
	}
	return 0
}

func formatDegrees(degrees float64, axis Axis) (string, bool) {
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		return "", false
	}
	rounded := math.Round(degrees*1e8) / 1e8
	if math.Abs(rounded) > axis.bound() {
		return "", false
	}
	if rounded == 0 {
		rounded = 0 // collapse -0
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64), true
}
