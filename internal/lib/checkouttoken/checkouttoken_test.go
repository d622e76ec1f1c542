package checkouttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	maker := NewMaker("test-secret", time.Hour)

	tokenStr, err := maker.Generate("user-123", "ref-456")
	require.NoError(t, err)

	claims, err := maker.Parse(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "user-123", claims.UserUID)
	assert.Equal(t, "ref-456", claims.CheckoutRef)
}

func TestParse_WrongKey(t *testing.T) {
	maker := NewMaker("test-secret", time.Hour)
	other := NewMaker("other-secret", time.Hour)

	tokenStr, err := maker.Generate("user-123", "ref-456")
	require.NoError(t, err)

	_, err = other.Parse(tokenStr)
	assert.Error(t, err)
}

func TestParse_Expired(t *testing.T) {
	maker := NewMaker("test-secret", -time.Minute)

	tokenStr, err := maker.Generate("user-123", "ref-456")
	require.NoError(t, err)

	_, err = maker.Parse(tokenStr)
	assert.Error(t, err)
}

func TestParse_Garbage(t *testing.T) {
	maker := NewMaker("test-secret", time.Hour)

	_, err := maker.Parse("not-a-token")
	assert.Error(t, err)
}
