// Package filter selects files by name using include/exclude globs and
// search terms. The CLI applies it to the files picked for an upload.
package filter

import (
	"path/filepath"
	"strings"
)

// Config holds filter configuration.
type Config struct {
	// Include patterns (glob-style). Empty means include all.
	// Example: []string{"*.wav", "*.mpg"}
	Include []string

	// Exclude patterns (glob-style). Takes precedence over Include.
	// Example: []string{"*.tmp", "~*"}
	Exclude []string

	// Search terms (case-insensitive substring match).
	// A file must contain ALL terms to be included.
	Search []string
}

// Match checks a single file name against c.
func Match(name string, c Config) bool {
	// 1. Exclude wins
	for _, pattern := range c.Exclude {
		if matched, _ := filepath.Match(pattern, name); matched {
			return false
		}
	}

	// 2. Include
	if len(c.Include) > 0 {
		included := false
		for _, pattern := range c.Include {
			if matched, _ := filepath.Match(pattern, name); matched {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}

	// 3. Search terms
	lower := strings.ToLower(name)
	for _, term := range c.Search {
		if !strings.Contains(lower, strings.ToLower(term)) {
			return false
		}
	}
	return true
}

// ParsePatternList parses a comma-separated list of patterns into a slice.
// Example: "*.wav,*.mpg" -> []string{"*.wav", "*.mpg"}
func ParsePatternList(patternStr string) []string {
	if patternStr == "" {
		return nil
	}
	parts := strings.Split(patternStr, ",")
	patterns := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	return patterns
}
