package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactKVs(t *testing.T) {
	t.Run("redacts secret keys", func(t *testing.T) {
		out := redactKVs([]interface{}{"db_dsn", "postgres://u:p@h/db", "key", "/works/OL1W"})
		assert.Equal(t, []interface{}{"db_dsn", "[REDACTED]", "key", "/works/OL1W"}, out)
	})

	t.Run("keeps dangling key", func(t *testing.T) {
		out := redactKVs([]interface{}{"a", 1, "orphan"})
		assert.Equal(t, []interface{}{"a", 1, "orphan"}, out)
	})

	t.Run("non string keys pass through", func(t *testing.T) {
		out := redactKVs([]interface{}{42, "v"})
		assert.Equal(t, []interface{}{42, "v"}, out)
	})
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	assert.NotPanics(t, func() {
		l.With("component", "test").Info("hello", "token", "abc")
	})
}
