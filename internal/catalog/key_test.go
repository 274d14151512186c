package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"bare id", "OL42W", "/works/OL42W"},
		{"lowercase bare id", "ol42w", "/works/OL42W"},
		{"already canonical", "/works/OL42W", "/works/OL42W"},
		{"missing leading slash", "works/OL42W", "/works/OL42W"},
		{"surrounding space", "  OL7W ", "/works/OL7W"},
		{"empty", "", ""},
		{"blank", "   ", ""},
		{"edition key stays opaque", "/books/OL1M", "/books/OL1M"},
		{"isbn stays opaque", "9780441013593", "9780441013593"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.raw))
		})
	}
}

func TestNormalizeKey_Idempotent(t *testing.T) {
	inputs := []string{
		"", " ", "OL42W", "ol1w", "/works/OL42W", "works/OL42W", "works/", "/works/",
		"garbage", "OL42A", "/authors/OL1A", "  works/ol9w", "works/works/OL1W",
	}
	for _, in := range inputs {
		once := NormalizeKey(in)
		assert.Equal(t, once, NormalizeKey(once), "input %q", in)
	}
}

func TestCanonicalKey_ReportsRecognition(t *testing.T) {
	key, ok := CanonicalKey("OL42W")
	assert.True(t, ok)
	assert.Equal(t, "/works/OL42W", key)

	key, ok = CanonicalKey("not-a-key")
	assert.False(t, ok)
	assert.Equal(t, "not-a-key", key)
}

func TestNormalizeAuthorKey(t *testing.T) {
	assert.Equal(t, "/authors/OL23A", NormalizeAuthorKey("OL23A"))
	assert.Equal(t, "/authors/OL23A", NormalizeAuthorKey("authors/OL23A"))
	assert.Equal(t, "/authors/OL23A", NormalizeAuthorKey("/authors/OL23A"))
}

func TestStripNamespace(t *testing.T) {
	assert.Equal(t, "OL42W", StripNamespace("/works/OL42W"))
	assert.Equal(t, "OL23A", StripNamespace("/authors/OL23A"))
	assert.Equal(t, "OL42W", StripNamespace("OL42W"))
}
