package agent

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ParseReport turns whatever the agent printed into a Report. Agents are
// told to answer with a JSON object but routinely wrap it in prose or
// markdown fences, or mangle it outright, so parsing degrades through four
// stages: the text as-is, a fenced code block, the first balanced JSON
// object in the text, then machine repair of the best candidate. Text that
// survives none of them becomes a plain-text report that asks for review.
func ParseReport(raw string) *Report {
	trimmed := strings.TrimSpace(raw)

	if report, ok := tryUnmarshal(trimmed); ok {
		return report
	}
	if fenced, ok := extractFenced(trimmed); ok {
		if report, ok := tryUnmarshal(fenced); ok {
			return report
		}
	}
	candidate := extractObject(trimmed)
	if candidate != "" {
		if report, ok := tryUnmarshal(candidate); ok {
			return report
		}
		if repaired, err := jsonrepair.JSONRepair(candidate); err == nil {
			if report, ok := tryUnmarshal(repaired); ok {
				return report
			}
		}
	}
	if repaired, err := jsonrepair.JSONRepair(trimmed); err == nil {
		if report, ok := tryUnmarshal(repaired); ok {
			return report
		}
	}

	report := &Report{Summary: trimmed}
	report.normalize()
	report.Risk.Reason = "agent output was not parseable"
	return report
}

func tryUnmarshal(s string) (*Report, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var report Report
	if err := json.Unmarshal([]byte(s), &report); err != nil {
		return nil, false
	}
	// an object that carries none of the expected fields is not a report
	if report.Summary == "" && report.Risk == nil && len(report.FilesCreated) == 0 && len(report.FilesModified) == 0 {
		return nil, false
	}
	report.normalize()
	return &report, true
}

// extractFenced pulls the contents of the first markdown code fence.
func extractFenced(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start == -1 {
		return "", false
	}
	rest := s[start+3:]
	// skip a language tag like "json"
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		first := strings.TrimSpace(rest[:nl])
		if first == "json" || first == "" {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, "```")
	if end == -1 {
		return strings.TrimSpace(rest), true
	}
	return strings.TrimSpace(rest[:end]), true
}

// extractObject returns the first balanced top-level JSON object embedded
// in the text, or "" if none closes.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	// unbalanced: hand the tail to the repair stage
	return s[start:]
}
