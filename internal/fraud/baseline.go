package fraud

// ExpectedNumber selects the baseline number for one IMEI from its
// association history: the number with the most occurrences wins, and a
// frequency tie falls back to the earliest first observation. The policy is
// a pure function over the history so it can be tested and swapped without
// touching any I/O; rerunning it over an unchanged history always returns
// the same number, which keeps "attendu" classifications stable across
// sequential investigations.
//
// The earliest-first-seen tie-break is a documented assumption: upstream
// never specified how two equally frequent candidates should rank.
func ExpectedNumber(history []Association) string {
	type tally struct {
		count     int
		firstSeen int // index of first observation, the tie-break
	}

	tallies := make(map[string]*tally)
	order := make([]string, 0)
	for i, assoc := range history {
		if assoc.Number == "" {
			continue
		}
		t, exists := tallies[assoc.Number]
		if !exists {
			t = &tally{firstSeen: i}
			tallies[assoc.Number] = t
			order = append(order, assoc.Number)
		}
		t.count++
	}

	expected := ""
	var best *tally
	for _, number := range order {
		t := tallies[number]
		if best == nil || t.count > best.count || (t.count == best.count && t.firstSeen < best.firstSeen) {
			expected, best = number, t
		}
	}
	return expected
}
