package utils

import (
	"strings"
	"time"
)

// PortalDateLayout is the listing date format, month/day/two-digit year.
// Two-digit years follow time.Parse: 69-99 map to 19xx, 00-68 to 20xx.
const PortalDateLayout = "01/02/06"

// ParsePortalDate parses a listing date. Empty or malformed values yield nil.
func ParsePortalDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	t, err := time.Parse(PortalDateLayout, value)
	if err != nil {
		return nil
	}
	return &t
}

// FormatDate renders a date as YYYY-MM-DD, or "" for nil
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.DateOnly)
}
