package admission

import (
	"fmt"
	"strings"
	"time"
)

// Layouts accepted for QR and session timestamps. Strings without an explicit
// offset are interpreted as UTC, never local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses an ISO-8601 timestamp, with or without an offset. A
// trailing literal "UTC" marker is tolerated, matching what older QR payloads
// carried.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "UTC"))
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("not an ISO-8601 timestamp: %q", s)
}
