// Package period resolves reporting windows for Z-Reports. Resolution is
// pure: no I/O, no clock access, and malformed input falls back to safe
// defaults instead of erroring.
package period

import (
	"strings"
	"time"
)

type Kind string

const (
	Daily   Kind = "Daily"
	Weekly  Kind = "Weekly"
	Monthly Kind = "Monthly"
)

// Window is an inclusive [Start, End] reporting range.
type Window struct {
	Kind  Kind
	Start time.Time
	End   time.Time
}

// ParseKind maps free-form input to a period kind. Unknown values fall back
// to Daily.
func ParseKind(raw string) Kind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "weekly":
		return Weekly
	case "monthly":
		return Monthly
	default:
		return Daily
	}
}

const anchorLayout = "2006-01-02"

// ParseAnchor parses a YYYY-MM-DD anchor date. Empty or unparsable input
// returns the fallback (callers pass today), never an error.
func ParseAnchor(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	anchor, err := time.Parse(anchorLayout, raw)
	if err != nil {
		return fallback
	}
	return anchor
}

// Resolve maps a period kind and anchor date to its inclusive window:
// Daily covers the anchor's day, Weekly the Monday–Sunday week containing
// the anchor, Monthly the anchor's full calendar month. Day bounds are
// 00:00:00 and 23:59:59.
func Resolve(kind Kind, anchor time.Time) Window {
	switch kind {
	case Weekly:
		monday := anchor.AddDate(0, 0, -mondayOffset(anchor))
		return Window{Kind: Weekly, Start: dayStart(monday), End: dayEnd(monday.AddDate(0, 0, 6))}
	case Monthly:
		first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
		last := first.AddDate(0, 1, 0).AddDate(0, 0, -1)
		return Window{Kind: Monthly, Start: first, End: dayEnd(last)}
	default:
		return Window{Kind: Daily, Start: dayStart(anchor), End: dayEnd(anchor)}
	}
}

// mondayOffset counts days since the most recent Monday (0 on Mondays).
func mondayOffset(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func dayEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}
