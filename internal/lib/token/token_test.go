package token

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	got, err := New(DefaultLength)
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(got)
	require.NoError(t, err)
	assert.Len(t, raw, DefaultLength)
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[string]struct{})
	for range 100 {
		got, err := New(DefaultLength)
		require.NoError(t, err)
		_, dup := seen[got]
		require.False(t, dup, "token collision")
		seen[got] = struct{}{}
	}
}
