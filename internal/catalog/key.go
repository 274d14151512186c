package catalog

import (
	"regexp"
	"strings"
)

const (
	WorksNamespace   = "/works/"
	AuthorsNamespace = "/authors/"
)

var (
	bareWorkID   = regexp.MustCompile(`(?i)^ol\d+w$`)
	bareAuthorID = regexp.MustCompile(`(?i)^ol\d+a$`)
)

// NormalizeKey canonicalizes an Open Library work identifier into the
// "/works/<id>" form. Blank input yields "". Unrecognized input is returned
// trimmed but otherwise unchanged. NormalizeKey(NormalizeKey(x)) == NormalizeKey(x).
func NormalizeKey(raw string) string {
	key, _ := normalize(raw, WorksNamespace, bareWorkID)
	return key
}

// CanonicalKey is NormalizeKey that also reports whether the input was
// recognized. Callers log unrecognized keys and keep them as opaque.
func CanonicalKey(raw string) (string, bool) {
	return normalize(raw, WorksNamespace, bareWorkID)
}

// NormalizeAuthorKey applies the same rules to "/authors/<id>" keys.
func NormalizeAuthorKey(raw string) string {
	key, _ := normalize(raw, AuthorsNamespace, bareAuthorID)
	return key
}

func normalize(raw, namespace string, bare *regexp.Regexp) (string, bool) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return "", true
	}
	if strings.HasPrefix(key, namespace) {
		return key, true
	}
	if bare.MatchString(key) {
		return namespace + strings.ToUpper(key), true
	}
	if strings.HasPrefix(key, strings.TrimPrefix(namespace, "/")) {
		return "/" + key, true
	}
	return key, false
}

// StripNamespace returns the bare id of a canonical key, e.g. "OL42W" for
// "/works/OL42W". Keys without a known namespace are returned unchanged.
func StripNamespace(key string) string {
	key = strings.TrimSpace(key)
	for _, ns := range []string{WorksNamespace, AuthorsNamespace} {
		if strings.HasPrefix(key, ns) {
			return strings.TrimPrefix(key, ns)
		}
	}
	return key
}
