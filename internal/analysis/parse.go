package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// StripFences removes a surrounding Markdown code fence (```json ... ```) if present.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop the info string (e.g. "json") up to the first newline.
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Decode strips fences from raw model output and decodes exactly one JSON value into T.
// Failures wrap ErrResponseParse and carry the raw text.
func Decode[T any](raw string) (T, error) {
	var out T

	body := StripFences(raw)
	if body == "" {
		return out, &ParseError{Raw: raw, Err: errors.New("empty response")}
	}

	dec := json.NewDecoder(strings.NewReader(body))
	if err := dec.Decode(&out); err != nil {
		return out, &ParseError{Raw: raw, Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return out, &ParseError{Raw: raw, Err: errors.New("trailing data after JSON value")}
	}
	return out, nil
}

// Compact returns v as compact JSON for embedding in a follow-up prompt.
func Compact(v any) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "null"
	}
	return strings.TrimSpace(buf.String())
}
