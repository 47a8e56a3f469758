// Package timeutil formats server-reported times for CLI display.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// LocalTimeFormat is the layout for local timestamps in CLI output.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

// FormatUptime renders a Go duration string (as reported by the health
// endpoint, e.g. "72h30m15s") as "3d 0h 30m 15s". Unparseable input is
// returned unchanged.
func FormatUptime(uptime string) string {
	d, err := time.ParseDuration(uptime)
	if err != nil {
		return uptime
	}

	total := int(d.Seconds())
	days, rem := total/86400, total%86400
	hours, rem := rem/3600, rem%3600
	minutes, seconds := rem/60, rem%60

	var b strings.Builder
	switch {
	case days > 0:
		fmt.Fprintf(&b, "%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		fmt.Fprintf(&b, "%dh %dm %ds", hours, minutes, seconds)
	case minutes > 0:
		fmt.Fprintf(&b, "%dm %ds", minutes, seconds)
	default:
		fmt.Fprintf(&b, "%ds", seconds)
	}
	return b.String()
}

// FormatTime renders an RFC3339 timestamp (the wire format for
// lastUpdated fields) in local time. Unparseable input is returned
// unchanged.
func FormatTime(timestamp string) string {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return timestamp
	}
	return t.Local().Format(LocalTimeFormat)
}
