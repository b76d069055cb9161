// Package strings provides string list utilities for configuration parsing.
package strings

import (
	"strings"
)

// SplitList splits raw on sep and returns the trimmed, deduplicated, non-empty
// parts in their original order. An empty input yields nil.
//
// Example:
//
//	SplitList(" kafka-1:9092, kafka-2:9092,,kafka-1:9092", ",")
//	// Returns: []string{"kafka-1:9092", "kafka-2:9092"}
func SplitList(raw, sep string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(raw, sep))
}

// DedupeAndTrim removes duplicates and blank entries, trimming whitespace from
// each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, false)
}

// DedupeAndTrimLower is like DedupeAndTrim but also lowercases each element.
// Column names are matched case-insensitively, so redaction lists use this.
func DedupeAndTrimLower(values []string) []string {
	return dedupe(values, true)
}

func dedupe(values []string, lower bool) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
