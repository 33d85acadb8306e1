// Package parser derives display metadata from uploaded note text.
package parser

import (
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Title derives a Markdown note's title from the frontmatter "title" field,
// falling back to the first H1 heading. It returns "" when neither exists.
func Title(text string) string {
	fm, body := splitFrontmatter(text)
	return deriveTitle(fm, body)
}

// IsMarkdown reports whether a file is treated as Markdown.
func IsMarkdown(name, mimeType string) bool {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "text/markdown", "text/x-markdown":
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".md" || ext == ".markdown"
}

// DisplayTitle returns the title shown in citations: the Markdown title when
// one exists, otherwise the file name.
func DisplayTitle(name, mimeType, text string) string {
	if IsMarkdown(name, mimeType) {
		if t := Title(text); t != "" {
			return t
		}
	}
	return name
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. Without valid frontmatter the whole text is body.
func splitFrontmatter(text string) (map[string]any, string) {
	const delim = "---"
	trimmed := strings.TrimLeft(text, "\n\r")
	if !strings.HasPrefix(trimmed, delim) {
		return nil, text
	}

	rest := trimmed[len(delim):]
	idx := strings.Index(rest, "\n"+delim)
	if idx < 0 {
		return nil, text
	}

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(rest[:idx]), &fm); err != nil {
		return nil, text
	}
	body := strings.TrimLeft(rest[idx+1+len(delim):], "\n\r")
	return fm, body
}

func deriveTitle(fm map[string]any, body string) string {
	if s, ok := fm["title"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
