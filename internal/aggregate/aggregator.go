package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/telesight/cdr-intel/internal/normalize"
	"github.com/telesight/cdr-intel/internal/resolver"
)

// DefaultTopLocations is the size of the "top" slice exposed alongside the
// full location list.
const DefaultTopLocations = 10

// ContactEvent is one chronological entry under a contact.
type ContactEvent struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	DurationLabel string    `json:"duration"`
	Direction     string    `json:"direction"`
	Type          string    `json:"type"`
}

// Contact is the per-correspondent aggregate of a search.
type Contact struct {
	Number              string          `json:"number"`
	CallCount           int             `json:"callCount"`
	SmsCount            int             `json:"smsCount"`
	Total               int             `json:"total"`
	CallDurationSeconds int             `json:"callDurationSeconds"`
	Events              []*ContactEvent `json:"events"`

	firstSeen int // first-appearance rank, the tie-break for sorting
}

// Location is the per-site aggregate of a search, keyed by the exact
// (latitude, longitude, nom) triplet.
type Location struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
	Nom       string `json:"nom"`
	Count     int    `json:"count"`

	firstSeen int
}

// Result bundles the aggregates rebuilt for one search.
type Result struct {
	Contacts     []*Contact  `json:"contacts"`
	Locations    []*Location `json:"locations"`
	TopLocations []*Location `json:"topLocations"`
}

// Aggregate folds a stream of normalized points into per-correspondent and
// per-location summaries. trackedIdentifiers are the identifiers driving the
// search: a correspondent is preferably a party that is not tracked, and
// when several distinct identifiers are tracked at once, events between two
// tracked parties are excluded from the contact view entirely (cross-talk
// between watched numbers is not a third-party contact).
func Aggregate(points []*normalize.CdrPoint, trackedIdentifiers []string) *Result {
	tracked := make(map[string]struct{}, len(trackedIdentifiers))
	for _, id := range trackedIdentifiers {
		if key := resolver.SubscriberKey(id); key != "" {
			tracked[key] = struct{}{}
		}
	}
	multiTracked := len(tracked) >= 2

	contacts := make(map[string]*Contact)
	locations := make(map[string]*Location)

	for _, point := range points {
		if point == nil {
			continue
		}
		accumulateLocation(locations, point)

		key, display, ok := correspondentKey(point, tracked, multiTracked)
		if !ok {
			continue
		}

		contact, exists := contacts[key]
		if !exists {
			contact = &Contact{Number: display, firstSeen: len(contacts)}
			contacts[key] = contact
		}

		if point.Type == normalize.TypeSMS {
			contact.SmsCount++
		} else {
			contact.CallCount++
			contact.CallDurationSeconds += point.DurationSeconds()
		}
		contact.Total = contact.CallCount + contact.SmsCount
		contact.Events = append(contact.Events, newContactEvent(key, len(contact.Events), point))
	}

	result := &Result{
		Contacts:  sortContacts(contacts),
		Locations: sortLocations(locations),
	}
	return result.withTop(DefaultTopLocations)
}

func (r *Result) withTop(n int) *Result {
	if len(r.Locations) < n {
		n = len(r.Locations)
	}
	r.TopLocations = r.Locations[:n]
	return r
}

// correspondentKey derives the contact bucket for a point. Candidates are
// collected from number, caller and callee in that order; a non-tracked
// candidate always wins. With a single tracked identifier an event that only
// involves tracked parties still aggregates under the tracked number; with
// several tracked identifiers it is dropped instead.
func correspondentKey(point *normalize.CdrPoint, tracked map[string]struct{}, multiTracked bool) (key, display string, ok bool) {
	type candidate struct {
		key     string
		display string
	}

	candidates := make([]candidate, 0, 3)
	for _, raw := range []string{point.Number, point.Caller, point.Callee} {
		if k := resolver.SubscriberKey(raw); k != "" {
			candidates = append(candidates, candidate{key: k, display: raw})
		}
	}
	if len(candidates) == 0 {
		return "", "", false
	}

	for _, c := range candidates {
		if _, isTracked := tracked[c.key]; !isTracked {
			return c.key, c.display, true
		}
	}

	// Every candidate is a tracked identifier.
	if multiTracked {
		return "", "", false
	}
	return candidates[0].key, candidates[0].display, true
}

func accumulateLocation(locations map[string]*Location, point *normalize.CdrPoint) {
	if point.Latitude == "" || point.Longitude == "" {
		return
	}
	key := point.Latitude + "|" + point.Longitude + "|" + point.Nom
	loc, exists := locations[key]
	if !exists {
		loc = &Location{
			Latitude:  point.Latitude,
			Longitude: point.Longitude,
			Nom:       point.Nom,
			firstSeen: len(locations),
		}
		locations[key] = loc
	}
	loc.Count++
}

func newContactEvent(key string, ordinal int, point *normalize.CdrPoint) *ContactEvent {
	timestamp, _ := normalize.ParseEventTime(point.CallDate, point.StartTime)
	return &ContactEvent{
		ID:            fmt.Sprintf("%s-%04d", key, ordinal),
		Timestamp:     timestamp,
		Date:          point.CallDate,
		Time:          point.StartTime,
		DurationLabel: FormatDuration(point.DurationSeconds()),
		Direction:     point.Direction,
		Type:          point.Type,
	}
}

// FormatDuration renders whole seconds as a compact h/mn/s label.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0s"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh%02dmn%02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dmn%02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

func sortContacts(byKey map[string]*Contact) []*Contact {
	contacts := make([]*Contact, 0, len(byKey))
	for _, c := range byKey {
		sortEvents(c.Events)
		contacts = append(contacts, c)
	}
	sort.SliceStable(contacts, func(i, j int) bool {
		if contacts[i].Total != contacts[j].Total {
			return contacts[i].Total > contacts[j].Total
		}
		return contacts[i].firstSeen < contacts[j].firstSeen
	})
	return contacts
}

func sortEvents(events []*ContactEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.IsZero() || events[j].Timestamp.IsZero() {
			// Events without a parseable timestamp keep input order, after
			// the dated ones.
			return events[j].Timestamp.IsZero() && !events[i].Timestamp.IsZero()
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

func sortLocations(byKey map[string]*Location) []*Location {
	locations := make([]*Location, 0, len(byKey))
	for _, l := range byKey {
		locations = append(locations, l)
	}
	sort.SliceStable(locations, func(i, j int) bool {
		if locations[i].Count != locations[j].Count {
			return locations[i].Count > locations[j].Count
		}
		return locations[i].firstSeen < locations[j].firstSeen
	})
	return locations
}
