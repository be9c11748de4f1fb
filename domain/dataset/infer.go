package dataset

import (
	"math"
	"strconv"
	"strings"
)

// numericThreshold is the share of non-empty cells that must parse as
// numbers for a raw column to be coerced numeric. Below it the column
// falls back to categorical.
const numericThreshold = 0.8

// identifierSuffixes mark key names whose columns carry row identity
// rather than analyzable values.
var identifierSuffixes = []string{"_id", "_key", "_uuid"}

// InferColumn resolves a raw string column to its variant exactly once.
// Numeric cells accept floats, ints and true/false (coerced to 1/0);
// empty cells become NaN in numeric columns and stay empty labels
// otherwise.
func InferColumn(key string, raw []string) Column {
	if isIdentifierKey(key) {
		return IdentifierColumn(key, trimAll(raw))
	}

	nonEmpty := 0
	parsed := 0
	for _, cell := range raw {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		nonEmpty++
		if _, ok := parseNumericCell(cell); ok {
			parsed++
		}
	}

	if nonEmpty > 0 && float64(parsed)/float64(nonEmpty) >= numericThreshold {
		values := make([]float64, len(raw))
		for i, cell := range raw {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				values[i] = math.NaN()
				continue
			}
			if v, ok := parseNumericCell(cell); ok {
				values[i] = v
			} else {
				values[i] = math.NaN()
			}
		}
		return NumericColumn(key, values)
	}

	return CategoricalColumn(key, trimAll(raw))
}

func isIdentifierKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "id" || k == "uuid" || k == "key" {
		return true
	}
	for _, suffix := range identifierSuffixes {
		if strings.HasSuffix(k, suffix) {
			return true
		}
	}
	return false
}

func parseNumericCell(cell string) (float64, bool) {
	switch strings.ToLower(cell) {
	case "true":
		return 1, true
	case "false":
		return 0, true
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func trimAll(raw []string) []string {
	out := make([]string, len(raw))
	for i, cell := range raw {
		out[i] = strings.TrimSpace(cell)
	}
	return out
}
