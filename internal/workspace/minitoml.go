package workspace

import (
	"regexp"
	"strings"
)

// minitoml extracts just enough from Cargo.toml/pyproject.toml to discover
// workspace members and path-dependencies: section headers, a handful of
// scalar keys, and string-array values. No third-party TOML decoder exists
// anywhere in the retrieval pack (see DESIGN.md), so this is a deliberately
// narrow, regex-based reader rather than a general TOML parser.

var tomlArrayRe = regexp.MustCompile(`(?m)^\s*([A-Za-z0-9_.-]+)\s*=\s*\[([^\]]*)\]`)
var tomlStringRe = regexp.MustCompile(`(?m)^\s*([A-Za-z0-9_.-]+)\s*=\s*"([^"]*)"`)
var tomlSectionRe = regexp.MustCompile(`(?m)^\s*\[([^\]]+)\]\s*$`)
var tomlInlineTablePathRe = regexp.MustCompile(`path\s*=\s*"([^"]*)"`)

// tomlSections splits content into named sections (including the implicit
// "" top-level section before the first header), preserving order.
func tomlSections(content string) []struct {
	name string
	body string
} {
	headers := tomlSectionRe.FindAllStringSubmatchIndex(content, -1)
	var sections []struct {
		name string
		body string
	}
	start := 0
	name := ""
	for _, h := range headers {
		sections = append(sections, struct {
			name string
			body string
		}{name, content[start:h[0]]})
		name = content[h[2]:h[3]]
		start = h[1]
	}
	sections = append(sections, struct {
		name string
		body string
	}{name, content[start:]})
	return sections
}

// tomlStringArray reads `key = ["a", "b"]` from body.
func tomlStringArray(body, key string) []string {
	for _, m := range tomlArrayRe.FindAllStringSubmatch(body, -1) {
		if m[1] != key {
			continue
		}
		var out []string
		for _, item := range strings.Split(m[2], ",") {
			item = strings.TrimSpace(item)
			item = strings.Trim(item, `"`)
			if item != "" {
				out = append(out, item)
			}
		}
		return out
	}
	return nil
}

// tomlString reads `key = "value"` from body.
func tomlString(body, key string) (string, bool) {
	for _, m := range tomlStringRe.FindAllStringSubmatch(body, -1) {
		if m[1] == key {
			return m[2], true
		}
	}
	return "", false
}

// tomlDependencyPaths scans a [dependencies]-style section for entries with
// an inline `path = "..."` table, the Cargo signal for a workspace-internal
// dependency.
func tomlDependencyPaths(body string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		eq := strings.Index(line, "=")
		if eq < 0 {
			continue
		}
		name := strings.TrimSpace(line[:eq])
		rest := line[eq+1:]
		if m := tomlInlineTablePathRe.FindStringSubmatch(rest); m != nil {
			out[name] = m[1]
		}
	}
	return out
}
