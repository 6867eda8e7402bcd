package calendar

import (
	"regexp"
	"strings"
)

// North-American-style number: optional +1, 3-3-4 grouping with flexible
// separators. Mirrors what customers paste into event descriptions.
var phonePattern = regexp.MustCompile(`\+?1?\s?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)

var nonDigits = regexp.MustCompile(`\D`)

// ExtractPhone pulls the first phone-looking token out of the event
// description, falling back to the summary, normalized to digits only.
// Returns "" when neither field contains a match.
func ExtractPhone(description, summary string) string {
	match := phonePattern.FindString(description)
	if match == "" {
		match = phonePattern.FindString(summary)
	}
	if match == "" {
		return ""
	}
	return nonDigits.ReplaceAllString(match, "")
}

// CustomerName resolves a display name for the event's first attendee:
// display name, else the local part of the email, else "Customer".
func CustomerName(a Attendee) string {
	if name := strings.TrimSpace(a.DisplayName); name != "" {
		return name
	}
	if a.Email != "" {
		if local, _, ok := strings.Cut(a.Email, "@"); ok && local != "" {
			return local
		}
		return a.Email
	}
	return "Customer"
}
