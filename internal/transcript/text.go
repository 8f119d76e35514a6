package transcript

import (
	"strconv"
	"strings"
	"time"
)

var (
	heavyRule = strings.Repeat("=", 60)
	lightRule = strings.Repeat("-", 60)
)

// RenderText formats doc as a human-readable transcript. Exchange
// timestamps are shown in local time when includeTimestamps is set.
func RenderText(doc *Document, includeTimestamps bool) string {
	lines := []string{
		heavyRule,
		"Meditation Session: " + doc.SessionID,
		heavyRule,
		"",
	}

	if doc.StartTime != 0 {
		lines = append(lines, "Started: "+doc.StartedAt().Local().Format(time.DateTime))
	}
	if doc.Duration != 0 {
		d := int(doc.Duration)
		lines = append(lines, "Duration: "+strconv.Itoa(d/60)+"m "+strconv.Itoa(d%60)+"s")
	}
	if len(doc.Tags) > 0 {
		lines = append(lines, "Tags: "+strings.Join(doc.Tags, ", "))
	}
	lines = append(lines, "", lightRule, "")

	for _, e := range doc.Exchanges {
		role := capitalize(e.Role)
		if includeTimestamps {
			ts := e.At().Local().Format(time.TimeOnly)
			lines = append(lines, "["+ts+"] "+role+":")
		} else {
			lines = append(lines, role+":")
		}
		lines = append(lines, "  "+e.Content, "")
	}

	if doc.Notes != "" {
		lines = append(lines, lightRule, "Notes:", doc.Notes)
	}
	return strings.Join(lines, "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}
