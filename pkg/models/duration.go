package models

import (
	"fmt"
	"regexp"
	"strconv"
)

// isoDurationRe accepts the subset of ISO-8601 durations recipes use:
// PT(<H>H)?(<M>M)?(<S>S)?. Date components never occur in cooking times.
var isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// ParseISODuration converts an ISO-8601 duration string (e.g. "PT1H30M",
// "PT45S") to total seconds. Empty or unmatched input yields 0.
func ParseISODuration(s string) int {
	if s == "" {
		return 0
	}
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	atoi := func(v string) int {
		if v == "" {
			return 0
		}
		n, _ := strconv.Atoi(v)
		return n
	}
	return atoi(m[1])*3600 + atoi(m[2])*60 + atoi(m[3])
}

// FormatISODuration is the inverse of ParseISODuration for durations
// expressible in hours/minutes/seconds. Sub-minute values render as
// seconds only ("PT45S").
func FormatISODuration(secs int) string {
	if secs < 0 {
		secs = 0
	}
	if secs < 60 {
		return fmt.Sprintf("PT%dS", secs)
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	out := "PT"
	if h > 0 {
		out += fmt.Sprintf("%dH", h)
	}
	if m > 0 {
		out += fmt.Sprintf("%dM", m)
	}
	if s > 0 {
		out += fmt.Sprintf("%dS", s)
	}
	return out
}

// HumanDuration renders a duration for spoken/display text: "45 seconds",
// "1 minute", "50 minutes", "1 hour 30 minutes".
func HumanDuration(secs int) string {
	if secs < 0 {
		secs = 0
	}
	if secs < 60 {
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	h := secs / 3600
	m := (secs % 3600) / 60
	switch {
	case h == 0 && m == 1:
		return "1 minute"
	case h == 0:
		return fmt.Sprintf("%d minutes", m)
	case h == 1 && m == 0:
		return "1 hour"
	case m == 0:
		return fmt.Sprintf("%d hours", h)
	case h == 1:
		return fmt.Sprintf("1 hour %d minutes", m)
	default:
		return fmt.Sprintf("%d hours %d minutes", h, m)
	}
}
