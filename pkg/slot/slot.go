package slot

import (
	"regexp"
	"strings"
	"time"
)

// Slot is a single appointment offer read from the booking site.
type Slot struct {
	Label string    // original label text, trimmed
	When  time.Time // parsed date and time
}

// The site renders labels in en-AU long form, e.g.
// "Wednesday, 25 June 2025 01:55 PM".
const labelLayout = "Monday, 02 January 2006 03:04 PM"

// time.Parse is lenient about zero padding, so the shape is gated by an
// anchored pattern first; anything unpadded, abbreviated or reordered is
// dropped before parsing.
var labelShape = regexp.MustCompile(`^[A-Z][a-z]+, \d{2} [A-Z][a-z]+ \d{4} \d{2}:\d{2} [AP]M$`)

// Parse converts a raw slot label into a Slot. Labels that do not match the
// expected format exactly are expected noise and yield ok=false, never an
// error. The returned Label is the trimmed original text, byte for byte.
func Parse(raw string) (Slot, bool) {
	text := strings.TrimSpace(raw)
	if text == "" || !labelShape.MatchString(text) {
		return Slot{}, false
	}
	when, err := time.Parse(labelLayout, text)
	if err != nil {
		return Slot{}, false
	}
	return Slot{Label: text, When: when}, true
}

// WithinWindow reports whether the slot's calendar date falls inside the
// 14-day inclusive window [ref, ref+13 days]. Time of day is ignored on
// both sides.
func (s Slot) WithinWindow(ref time.Time) bool {
	day := s.dateOnly(s.When)
	start := s.dateOnly(ref)
	end := start.AddDate(0, 0, 13)
	return !day.Before(start) && !day.After(end)
}

func (Slot) dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Labels extracts the original label of each slot, in order.
func Labels(slots []Slot) []string {
	labels := make([]string, len(slots))
	for i, s := range slots {
		labels[i] = s.Label
	}
	return labels
}
