package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Timestamp is a position within the source media. Upstream sends either a
// number of seconds or a formatted "HH:MM:SS" / "MM:SS" string; both are kept
// as received.
type Timestamp struct {
	text    string
	seconds float64
	numeric bool
}

// SecondsTimestamp returns a numeric timestamp.
func SecondsTimestamp(seconds float64) Timestamp {
	return Timestamp{seconds: seconds, numeric: true}
}

// TextTimestamp returns a formatted-string timestamp.
func TextTimestamp(text string) Timestamp {
	return Timestamp{text: text}
}

// IsZero reports whether no timestamp was received.
func (t Timestamp) IsZero() bool {
	return !t.numeric && t.text == ""
}

// Seconds returns the offset in seconds, parsing the string form if needed.
func (t Timestamp) Seconds() (float64, bool) {
	if t.numeric {
		return t.seconds, true
	}
	return ParseClock(t.text)
}

// String returns the display form: numeric offsets are formatted as a clock,
// strings are returned as received.
func (t Timestamp) String() string {
	if t.numeric {
		return FormatSeconds(t.seconds)
	}
	return t.text
}

// MarshalJSON writes the timestamp back in the representation it arrived in.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	switch {
	case t.numeric:
		return json.Marshal(t.seconds)
	case t.text != "":
		return json.Marshal(t.text)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON accepts a number or a string. Any other JSON type leaves
// the timestamp empty.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	*t = Timestamp{}
	if string(data) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*t = SecondsTimestamp(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = TextTimestamp(s)
	}
	return nil
}

// FormatSeconds renders an offset as MM:SS, or HH:MM:SS from one hour on.
func FormatSeconds(total float64) string {
	if total < 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		total = 0
	}
	secs := int64(math.Floor(total))
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// ParseClock parses "HH:MM:SS", "MM:SS" or a bare number of seconds.
func ParseClock(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, false
	}

	var total float64
	for i, p := range parts {
		last := i == len(parts)-1
		var v float64
		if last {
			f, err := strconv.ParseFloat(p, 64)
			if err != nil {
				return 0, false
			}
			v = f
		} else {
			n, err := strconv.Atoi(p)
			if err != nil {
				return 0, false
			}
			v = float64(n)
		}
		if v < 0 || (len(parts) > 1 && i > 0 && v >= 60) {
			return 0, false
		}
		total = total*60 + v
	}
	return total, true
}
