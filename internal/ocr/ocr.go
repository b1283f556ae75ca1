package ocr

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode"
)

// ErrUnavailable is returned when the binary was built without OCR support.
var ErrUnavailable = errors.New("text recognition not available in this build")

// Reader extracts raw text from an image.
type Reader interface {
	Text(ctx context.Context, img []byte) (string, error)
}

// NameReader pulls a person's name off an ID card image.
type NameReader struct {
	Reader Reader
}

// ReadName returns the most likely holder name, or "" when none is found.
func (n NameReader) ReadName(ctx context.Context, img []byte) (string, error) {
	if n.Reader == nil {
		return "", ErrUnavailable
	}
	text, err := n.Reader.Text(ctx, img)
	if err != nil {
		return "", err
	}
	return ExtractName(text), nil
}

var (
	labelSplit = regexp.MustCompile(`^\s*([A-Za-z /.]+?)\s*[:\-]\s*(.*)$`)
	nameLine   = regexp.MustCompile(`^[A-Za-z][A-Za-z .,'\-]+$`)
)

var boilerplate = []string{
	"REPUBLIC", "PHILIPPINES", "PILIPINAS", "CARD", "IDENTIFICATION", "LICENSE",
	"DRIVER", "NATIONAL", "STUDENT", "UNIVERSITY", "COLLEGE", "DEPARTMENT",
	"ADDRESS", "SEX", "DATE", "BIRTH", "NATIONALITY", "SIGNATURE", "VALID", "ID",
}

// ExtractName finds the holder name in OCR text. Labelled fields
// ("Last Name", "Given Names", "Name") win over unlabelled lines.
func ExtractName(text string) string {
	lines := cleanLines(text)
	var last, given, full string

	for i, line := range lines {
		label, value := splitLabel(line)
		if label == "" {
			continue
		}
		if value == "" && i+1 < len(lines) {
			if l, _ := splitLabel(lines[i+1]); l == "" {
				value = lines[i+1]
			}
		}
		switch label {
		case "LAST NAME", "SURNAME", "APELYIDO":
			last = value
		case "GIVEN NAME", "GIVEN NAMES", "FIRST NAME", "MGA PANGALAN":
			given = value
		case "NAME", "FULL NAME", "PANGALAN":
			full = value
		}
	}

	switch {
	case last != "" && given != "":
		return titleCase(given + " " + last)
	case full != "":
		return titleCase(strings.ReplaceAll(full, ",", " "))
	}

	for _, line := range lines {
		if looksLikeName(line) {
			return titleCase(line)
		}
	}
	return ""
}

func cleanLines(text string) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func splitLabel(line string) (string, string) {
	m := labelSplit.FindStringSubmatch(line)
	if m != nil {
		return normalizeLabel(m[1]), strings.TrimSpace(m[2])
	}
	if l := normalizeLabel(line); isKnownLabel(l) {
		return l, ""
	}
	return "", ""
}

func normalizeLabel(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if i := strings.Index(s, "/"); i >= 0 {
		s = strings.TrimSpace(s[i+1:])
	}
	return strings.Join(strings.Fields(s), " ")
}

func isKnownLabel(l string) bool {
	switch l {
	case "LAST NAME", "SURNAME", "APELYIDO", "GIVEN NAME", "GIVEN NAMES", "FIRST NAME",
		"MGA PANGALAN", "NAME", "FULL NAME", "PANGALAN":
		return true
	}
	return false
}

func looksLikeName(line string) bool {
	if !nameLine.MatchString(line) {
		return false
	}
	words := strings.Fields(line)
	if len(words) < 2 || len(words) > 5 {
		return false
	}
	upper := strings.ToUpper(line)
	for _, w := range strings.Fields(upper) {
		for _, b := range boilerplate {
			if strings.Trim(w, ".,") == b {
				return false
			}
		}
	}
	return true
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
