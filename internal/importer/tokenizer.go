package importer

// tokenizer.go turns raw file bytes into a sanitized grid of headers and
// string cells. Everything in the file is untrusted: content is screened for
// known-dangerous payloads before parsing, and every cell is independently
// sanitized before it enters a session.

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxFileSize is the upload size ceiling (5 MiB).
const MaxFileSize int64 = 5 * 1024 * 1024

// MaxCellLength is the per-cell length ceiling after sanitization.
const MaxCellLength = 1000

var allowedExtensions = map[string]bool{
	".csv": true,
	".txt": true,
}

// suspiciousPatterns are scanned against the whole decoded file. A single
// match rejects the entire file, not just the offending cell: formula
// injection survives per-cell escaping in too many spreadsheet tools to
// risk a partial accept.
var suspiciousPatterns = []string{
	"=cmd|",       // Excel formula injection
	"=|cmd",       //
	"@sum(",       // Excel formulas
	"=hyperlink",  //
	"<script",     // JS injection
	"javascript:", //
}

var (
	htmlTagRe      = regexp.MustCompile(`<[^>]*>`)
	injectionRe    = regexp.MustCompile("[<>'\"`;\\\\]")
	jsProtocolRe   = regexp.MustCompile(`(?i)javascript:`)
	eventHandlerRe = regexp.MustCompile(`(?i)on\w+\s*=`)
)

// CheckFile validates the declared name and size before any content is
// read. Returns a FileRejectedError on failure.
func CheckFile(fileName string, size int64) error {
	if size > MaxFileSize {
		return &FileRejectedError{Reason: fmt.Sprintf("file too large, maximum size is %dMB", MaxFileSize/(1024*1024))}
	}
	ext := strings.ToLower(filepath.Ext(fileName))
	if !allowedExtensions[ext] {
		return &FileRejectedError{Reason: "invalid file type, expected a CSV file"}
	}
	return nil
}

// Tokenize parses raw file bytes into sanitized headers and rows.
// CheckFile must pass first; Tokenize re-runs it so callers cannot skip the
// gate. Fails with FileRejectedError on malicious content and ErrEmptyFile
// when nothing usable survives parsing.
func Tokenize(fileName string, size int64, data []byte) ([]string, []Row, error) {
	if err := CheckFile(fileName, size); err != nil {
		return nil, nil, err
	}

	text := string(sanitizeUTF8(data))

	if reason := scanContent(text); reason != "" {
		return nil, nil, &FileRejectedError{Reason: reason}
	}

	lines := splitLines(text)
	if len(lines) == 0 {
		return nil, nil, ErrEmptyFile
	}

	headers := tokenizeLine(lines[0])
	for i, h := range headers {
		headers[i] = sanitizeCell(strings.ToLower(strings.TrimSpace(h)))
	}
	if len(headers) == 0 {
		return nil, nil, ErrEmptyFile
	}

	var rows []Row
	for _, line := range lines[1:] {
		values := tokenizeLine(line)
		row := make(Row, len(headers))
		empty := true
		for i, h := range headers {
			v := ""
			if i < len(values) {
				v = sanitizeCell(values[i])
			}
			row[h] = v
			if strings.TrimSpace(v) != "" {
				empty = false
			}
		}
		// Rows that are blank across all columns never enter the session.
		if !empty {
			rows = append(rows, row)
		}
	}

	if len(rows) == 0 {
		return nil, nil, ErrEmptyFile
	}

	return headers, rows, nil
}

// scanContent screens the whole file for known-dangerous payloads.
// Returns a rejection reason, or "" if the content is clean.
func scanContent(text string) string {
	if strings.ContainsRune(text, 0) {
		return "file contains null bytes"
	}
	lower := strings.ToLower(text)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(lower, pattern) {
			return "file contains potentially malicious content"
		}
	}
	return ""
}

// splitLines splits on CR/LF and drops blank physical lines.
func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// tokenizeLine splits one physical line into fields on commas, honoring
// double-quote quoting. Two consecutive quotes inside a quoted field
// collapse to one literal quote. Each field is trimmed.
func tokenizeLine(line string) []string {
	var fields []string
	var current strings.Builder
	inQuotes := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch {
		case ch == '"':
			if inQuotes && i+1 < len(runes) && runes[i+1] == '"' {
				current.WriteRune('"')
				i++
			} else {
				inQuotes = !inQuotes
			}
		case ch == ',' && !inQuotes:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}

// sanitizeCell scrubs a single cell value: strips HTML-tag-like runs,
// injection characters, javascript: protocol prefixes, and inline event
// handler tokens, then trims and truncates.
func sanitizeCell(s string) string {
	if s == "" {
		return ""
	}
	s = htmlTagRe.ReplaceAllString(s, "")
	s = injectionRe.ReplaceAllString(s, "")
	s = jsProtocolRe.ReplaceAllString(s, "")
	s = eventHandlerRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxCellLength {
		s = string([]rune(s)[:MaxCellLength])
	}
	return s
}

// sanitizeUTF8 replaces invalid byte sequences with U+FFFD. Untrusted
// exports are frequently Windows-1252; a lossy decode beats a parse error.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}
