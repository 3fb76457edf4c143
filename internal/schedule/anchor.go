package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Anchor names the calendar boundary a schedule repeats from.
type Anchor string

const (
	AnchorWeek  Anchor = "week"  // Monday 00:00 UTC of the ISO week
	AnchorMonth Anchor = "month" // 1st of the month, 00:00 UTC
	AnchorYear  Anchor = "year"  // January 1st, 00:00 UTC
)

// ParseAnchor parses an anchor token case-insensitively.
func ParseAnchor(s string) (Anchor, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "week":
		return AnchorWeek, nil
	case "month":
		return AnchorMonth, nil
	case "year":
		return AnchorYear, nil
	default:
		return "", fmt.Errorf("unsupported anchor %q (expected: week, month, year)", s)
	}
}

// AnchorStart returns the anchor instant for "now": the start of the current
// ISO week, month, or year, always in UTC.
func AnchorStart(anchor Anchor, now time.Time) (time.Time, error) {
	now = now.UTC()
	switch anchor {
	case AnchorWeek:
		// Monday 00:00 of the current week. Go's Weekday has Sunday=0;
		// ISO weeks start on Monday.
		wd := int(now.Weekday())
		if wd == 0 {
			wd = 7
		}
		monday := now.AddDate(0, 0, -(wd - 1))
		return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, time.UTC), nil
	case AnchorMonth:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), nil
	case AnchorYear:
		return time.Date(now.Year(), 1, 1, 0, 0, 0, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported anchor %q (expected: week, month, year)", string(anchor))
	}
}
