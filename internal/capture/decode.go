package capture

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// The debug adapter protocol returns variable values as display strings, not
// typed payloads, so primitive decoding is necessarily heuristic. DecodeDisplay
// recovers the best-effort typed scalar and never fails; ambiguous text comes
// back as a string.

var numericPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// DecodeDisplay turns a protocol display string plus optional type tag into a
// typed scalar: nil, Undefined, bool, float64 or string.
func DecodeDisplay(text, typeTag string) any {
	switch text {
	case "undefined":
		return Undefined
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}

	if isNumericType(typeTag) || (typeTag == "" && numericPattern.MatchString(text)) {
		f, err := strconv.ParseFloat(text, 64)
		if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f
		}
		// NaN, Infinity and unparsable numerics stay as display text.
		return text
	}

	if len(text) >= 2 {
		first, last := text[0], text[len(text)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			return text[1 : len(text)-1]
		}
	}

	return text
}

// isNumericType reports whether a debug adapter type tag names a numeric
// type. Tags vary per runtime ("number" for JS, "int"/"float64" for Go,
// "int"/"float" for Python).
func isNumericType(tag string) bool {
	tag = strings.ToLower(tag)
	switch {
	case tag == "number" || tag == "double" || tag == "long":
		return true
	case strings.HasPrefix(tag, "int") || strings.HasPrefix(tag, "uint"):
		return true
	case strings.HasPrefix(tag, "float"):
		return true
	}
	return false
}
