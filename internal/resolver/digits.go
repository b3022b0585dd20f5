package resolver

import "strings"

// subscriberSuffixLen is the number of trailing digits that identify a
// subscriber once the country code is removed.
const subscriberSuffixLen = 9

// Digits strips every non-digit rune from an identifier.
func Digits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SubscriberKey reduces a phone identifier to its comparison form: digits
// only, truncated to the trailing subscriber suffix when a country code is
// present. Returns "" when the input carries no digits.
func SubscriberKey(s string) string {
	d := Digits(s)
	if len(d) > subscriberSuffixLen {
		return d[len(d)-subscriberSuffixLen:]
	}
	return d
}

// SameSubscriber reports whether two identifiers address the same
// subscriber, tolerating country-code prefixes and formatting noise.
func SameSubscriber(a, b string) bool {
	ka, kb := SubscriberKey(a), SubscriberKey(b)
	if ka == "" || kb == "" {
		return false
	}
	return ka == kb
}
