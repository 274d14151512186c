package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadKeys(t *testing.T) {
	in := "OL45804W\n\n  # classics\n /works/OL27448W \r\n"
	keys, err := readKeys(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"OL45804W", "/works/OL27448W"}, keys)
}
