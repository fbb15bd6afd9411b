package logger

import (
	"io"
	"regexp"
)

const redactedMarker = "[REDACTED]"

// Redactor masks credentials before a line reaches any sink
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the default credential patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`Bearer\s+[a-zA-Z0-9._-]+`),
			regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`),
			regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
			regexp.MustCompile(`(?i)(password|pwd|secret)["\s:=]+[^\s"]+`),
			regexp.MustCompile(`(?i)(token|session_?id)["\s:=]+[a-zA-Z0-9._-]{16,}`),
		},
	}
}

// AddPattern registers an extra expression to mask
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact returns s with every match replaced by the marker
func (r *Redactor) Redact(s string) string {
	for _, pattern := range r.patterns {
		s = pattern.ReplaceAllString(s, redactedMarker)
	}
	return s
}

// Wrap returns a writer that redacts everything passed through it
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so callers never see a short write
// caused by the redacted text being shorter.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
