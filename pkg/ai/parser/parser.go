// Package parser extracts structured answers from free-form model output.
//
// Models tend to wrap JSON in markdown fences and surround it with prose. The
// extraction order is: a ```json fenced block, then any fenced block, then the
// first balanced top-level object in the text, then the whole text. Every
// function here is pure and reports failures as *ParseError.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Parse contexts
const (
	ContextClassification = "classification"
	ContextGeneration     = "generation"
	ContextSuggestion     = "suggestion"
	ContextInsight        = "insight"
)

const snippetLen = 120

var ErrParse = errors.New("invalid model response")

// ParseError describes why a model response could not be used.
type ParseError struct {
	Context string
	Reason  string
	Snippet string
}

func (e *ParseError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("invalid %s response: %s", e.Context, e.Reason)
	}
	return fmt.Sprintf("invalid %s response: %s (got %q)", e.Context, e.Reason, e.Snippet)
}

func (e *ParseError) Unwrap() error { return ErrParse }

func newParseError(context, reason, raw string) *ParseError {
	return &ParseError{Context: context, Reason: reason, Snippet: snippet(raw)}
}

func snippet(raw string) string {
	s := strings.TrimSpace(raw)
	r := []rune(s)
	if len(r) > snippetLen {
		return string(r[:snippetLen]) + "..."
	}
	return s
}

var (
	jsonFence    = regexp.MustCompile("(?s)```json[ \t]*\r?\n(.*?)\r?\n?```")
	genericFence = regexp.MustCompile("(?s)```[a-zA-Z0-9_-]*[ \t]*\r?\n(.*?)\r?\n?```")
)

// ExtractJSON returns the most likely JSON payload inside text.
func ExtractJSON(text string) string {
	if m := jsonFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := genericFence.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		if obj, ok := firstObject(trimmed); ok {
			return obj
		}
	}
	return trimmed
}

// firstObject scans for the first balanced {...} span, honouring strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
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
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func decodeObject(context, text string, v any) error {
	payload := ExtractJSON(text)
	if payload == "" {
		return newParseError(context, "empty response", text)
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return newParseError(context, "malformed JSON: "+err.Error(), payload)
	}
	return nil
}
