package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"bookcatalog/internal/platform/openlibrary"
)

// ErrMalformed marks a field whose value has an unexpected shape. It never
// leaves this package; the field falls back to its default instead.
var ErrMalformed = errors.New("malformed catalog field")

var errAbsent = errors.New("field absent")

const (
	DefaultTitle  = "Untitled"
	DefaultAuthor = "Unknown Author"
	maxGenres     = 10
)

var yearPattern = regexp.MustCompile(`\b(\d{4})\b`)

func malformed(field string, v any) error {
	return fmt.Errorf("%w: %s has type %T", ErrMalformed, field, v)
}

func stringField(doc openlibrary.Document, field string) (string, error) {
	v, ok := doc[field]
	if !ok || v == nil {
		return "", errAbsent
	}
	s, ok := v.(string)
	if !ok {
		return "", malformed(field, v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errAbsent
	}
	return s, nil
}

// stringList accepts a JSON array of strings. Non-string items are skipped;
// a non-array value is malformed.
func stringList(doc openlibrary.Document, field string) ([]string, error) {
	v, ok := doc[field]
	if !ok || v == nil {
		return nil, errAbsent
	}
	items, ok := v.([]any)
	if !ok {
		return nil, malformed(field, v)
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	if len(out) == 0 {
		return nil, errAbsent
	}
	return out, nil
}

// textValue reads fields that are either a string or {"type": ..., "value": ...}.
func textValue(doc openlibrary.Document, field string) (string, error) {
	v, ok := doc[field]
	if !ok || v == nil {
		return "", errAbsent
	}
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return s, nil
		}
		return "", errAbsent
	case map[string]any:
		if s, ok := t["value"].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), nil
		}
		return "", malformed(field+".value", t["value"])
	default:
		return "", malformed(field, v)
	}
}

// firstAuthorKey handles both {"author": {"key": ...}} and {"key": ...} entries.
func firstAuthorKey(doc openlibrary.Document) (string, error) {
	v, ok := doc["authors"]
	if !ok || v == nil {
		return "", errAbsent
	}
	items, ok := v.([]any)
	if !ok {
		return "", malformed("authors", v)
	}
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if nested, ok := entry["author"].(map[string]any); ok {
			if key, ok := nested["key"].(string); ok && key != "" {
				return key, nil
			}
		}
		if key, ok := entry["key"].(string); ok && key != "" {
			return key, nil
		}
	}
	if len(items) > 0 {
		return "", malformed("authors[].author.key", items[0])
	}
	return "", errAbsent
}

// firstCoverID returns the first positive cover id. Open Library uses -1 for
// removed covers.
func firstCoverID(doc openlibrary.Document, field string) (int64, error) {
	v, ok := doc[field]
	if !ok || v == nil {
		return 0, errAbsent
	}
	switch t := v.(type) {
	case float64:
		if t > 0 {
			return int64(t), nil
		}
		return 0, errAbsent
	case []any:
		for _, item := range t {
			if id, ok := item.(float64); ok && id > 0 {
				return int64(id), nil
			}
		}
		if len(t) > 0 {
			return 0, malformed(field+"[0]", t[0])
		}
		return 0, errAbsent
	default:
		return 0, malformed(field, v)
	}
}

func yearFromNumber(doc openlibrary.Document, field string) (int, error) {
	v, ok := doc[field]
	if !ok || v == nil {
		return 0, errAbsent
	}
	n, ok := v.(float64)
	if !ok || n <= 0 {
		return 0, malformed(field, v)
	}
	return int(n), nil
}

func yearFromDate(doc openlibrary.Document, field string) (int, error) {
	s, err := stringField(doc, field)
	if err != nil {
		return 0, err
	}
	m := yearPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, malformed(field, s)
	}
	var year int
	_, _ = fmt.Sscanf(m[1], "%d", &year)
	return year, nil
}

// languageCode reads [{"key": "/languages/eng"}] style lists.
func languageCode(doc openlibrary.Document) (string, error) {
	v, ok := doc["languages"]
	if !ok || v == nil {
		return "", errAbsent
	}
	items, ok := v.([]any)
	if !ok {
		return "", malformed("languages", v)
	}
	for _, item := range items {
		if entry, ok := item.(map[string]any); ok {
			if key, ok := entry["key"].(string); ok && key != "" {
				return strings.TrimPrefix(key, "/languages/"), nil
			}
		}
	}
	return "", errAbsent
}

// preferISBN13 picks a 13 digit isbn when one exists.
func preferISBN13(isbns []string) string {
	if len(isbns) == 0 {
		return ""
	}
	for _, isbn := range isbns {
		if clean := CleanISBN(isbn); len(clean) == 13 {
			return clean
		}
	}
	return CleanISBN(isbns[0])
}

func CleanISBN(isbn string) string {
	isbn = strings.ReplaceAll(isbn, "-", "")
	isbn = strings.ReplaceAll(isbn, " ", "")
	return strings.ToUpper(isbn)
}

func capGenres(genres []string) []string {
	if len(genres) > maxGenres {
		return genres[:maxGenres]
	}
	return genres
}
