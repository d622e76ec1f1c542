package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCompare(t *testing.T) {
	hasher := NewHasher(MinCost)

	hash, err := hasher.Hash("Sup3rSecret!")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotEqual(t, "Sup3rSecret!", hash)

	assert.NoError(t, CompareHash(hash, "Sup3rSecret!"))
	assert.Error(t, CompareHash(hash, "WrongPassword1!"))
}

func TestNewHasher_EnforcesMinCost(t *testing.T) {
	hasher := NewHasher(4)
	assert.Equal(t, MinCost, hasher.cost)

	hasher = NewHasher(14)
	assert.Equal(t, 14, hasher.cost)
}

func TestValidatePolicy(t *testing.T) {
	tests := []struct {
		name     string
		password string
		strict   bool
		wantErr  error
	}{
		{
			name:     "valid strict password",
			password: "Passw0rd!",
			strict:   true,
			wantErr:  nil,
		},
		{
			name:     "too short",
			password: "P4ss!",
			strict:   true,
			wantErr:  ErrTooShort,
		},
		{
			name:     "missing uppercase",
			password: "passw0rd!",
			strict:   true,
			wantErr:  ErrNoUpper,
		},
		{
			name:     "missing lowercase",
			password: "PASSW0RD!",
			strict:   true,
			wantErr:  ErrNoLower,
		},
		{
			name:     "missing digit",
			password: "Password!",
			strict:   true,
			wantErr:  ErrNoDigit,
		},
		{
			name:     "missing special character",
			password: "Passw0rd",
			strict:   true,
			wantErr:  ErrNoSpecial,
		},
		{
			name:     "lax mode only checks length",
			password: "password",
			strict:   false,
			wantErr:  nil,
		},
		{
			name:     "lax mode still rejects short",
			password: "pass",
			strict:   false,
			wantErr:  ErrTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePolicy(tt.password, tt.strict)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
