package label

import (
	"errors"
	"regexp"
	"strings"
)

// ErrEmptyLabel means neither strip yielded any usable text
var ErrEmptyLabel = errors.New("ocr produced an empty label")

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_.]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// Sanitize turns raw OCR text into a filename-safe token:
// anything outside [A-Za-z0-9 whitespace - _ .] is dropped, whitespace runs become one underscore.
func Sanitize(raw string) string {
	text := unsafeChars.ReplaceAllString(raw, "")
	text = whitespace.ReplaceAllString(text, " ")
	return strings.ReplaceAll(strings.TrimSpace(text), " ", "_")
}

// Compose joins the sanitized non-empty strip texts with an underscore
func Compose(parts ...string) (string, error) {
	var kept []string
	for _, p := range parts {
		if s := Sanitize(p); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return "", ErrEmptyLabel
	}

	label := strings.Join(kept, "_")
	// "." and ".." are not names
	if strings.Trim(label, ".") == "" {
		return "", ErrEmptyLabel
	}
	return label, nil
}
