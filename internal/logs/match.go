package logs

import (
	"encoding/json"
	"strings"
)

// Match selects log lines. Empty fields match everything.
type Match struct {
	Component string
	EventType string
	Tag       string
}

// Empty reports whether m matches every line.
func (m Match) Empty() bool {
	return m.Component == "" && m.EventType == "" && m.Tag == ""
}

func (m Match) matches(line string) bool {
	if m.Empty() {
		return true
	}
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var fields map[string]any
		if err := json.Unmarshal([]byte(trimmed), &fields); err == nil {
			return fieldIs(fields, "component", m.Component) &&
				fieldIs(fields, "event_type", m.EventType) &&
				fieldIs(fields, "tag", m.Tag)
		}
	}
	for _, want := range []string{m.Component, m.EventType, m.Tag} {
		if want != "" && !strings.Contains(line, want) {
			return false
		}
	}
	return true
}

func fieldIs(fields map[string]any, key, want string) bool {
	if want == "" {
		return true
	}
	got, _ := fields[key].(string)
	return got == want
}

func filterLines(lines []string, m Match) []string {
	if m.Empty() {
		return lines
	}
	out := lines[:0:0]
	for _, line := range lines {
		if m.matches(line) {
			out = append(out, line)
		}
	}
	return out
}
