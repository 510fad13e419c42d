package auth

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"youthexchange/internal/domain"
)

func TestBcryptHasher_GenerateSalt(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	hexRe := regexp.MustCompile(`^[0-9a-f]{64}$`)

	seen := map[string]bool{}
	for range 5 {
		salt, err := h.GenerateSalt()
		require.NoError(t, err)
		assert.Regexp(t, hexRe, salt)
		assert.False(t, seen[salt], "salts must not repeat")
		seen[salt] = true
	}
}

func TestBcryptHasher_Compare(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	salt, err := h.GenerateSalt()
	require.NoError(t, err)
	otherSalt, err := h.GenerateSalt()
	require.NoError(t, err)
	long := strings.Repeat("p", 100)

	hash, err := h.Hash(salt, "correct horse")
	require.NoError(t, err)
	longHash, err := h.Hash(salt, long)
	require.NoError(t, err)

	tests := []struct {
		name     string
		hash     string
		salt     string
		password string
		wantErr  error
	}{
		{name: "match", hash: hash, salt: salt, password: "correct horse"},
		{name: "long password", hash: longHash, salt: salt, password: long},
		{name: "long password differs past 72 bytes", hash: longHash, salt: salt, password: long[:99] + "q", wantErr: domain.ErrInvalidCredentials},
		{name: "wrong password", hash: hash, salt: salt, password: "wrong", wantErr: domain.ErrInvalidCredentials},
		{name: "wrong salt", hash: hash, salt: otherSalt, password: "correct horse", wantErr: domain.ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Compare(tt.hash, tt.salt, tt.password)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBcryptHasher_CompareMalformedHash(t *testing.T) {
	h := NewBcryptHasher(bcrypt.MinCost)
	err := h.Compare("not-a-hash", "salt", "pw")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrInvalidCredentials)
}
