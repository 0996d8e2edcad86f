package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pepperA = []byte("0123456789abcdef-pepper-A")
	pepperB = []byte("0123456789abcdef-pepper-B")
)

func TestHasher_HashAndVerify(t *testing.T) {
	h, err := NewHasher(pepperA)
	require.NoError(t, err)

	hash, err := h.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=2,p=1$"), hash)
	assert.NotContains(t, hash, string(pepperA))

	assert.True(t, h.Verify("correct horse battery staple", hash))
	assert.False(t, h.Verify("wrong password", hash))
}

func TestHasher_SaltsDiffer(t *testing.T) {
	h, err := NewHasher(pepperA)
	require.NoError(t, err)

	first, err := h.Hash("same")
	require.NoError(t, err)
	second, err := h.Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestHasher_OtherPepperRejects(t *testing.T) {
	a, err := NewHasher(pepperA)
	require.NoError(t, err)
	b, err := NewHasher(pepperB)
	require.NoError(t, err)

	hash, err := a.Hash("p@ss")
	require.NoError(t, err)
	assert.False(t, b.Verify("p@ss", hash))
}

func TestHasher_VerifyMalformedFailsClosed(t *testing.T) {
	h, err := NewHasher(pepperA)
	require.NoError(t, err)

	valid, err := h.Hash("pw")
	require.NoError(t, err)
	parts := strings.Split(valid, "$")

	cases := map[string]string{
		"empty":           "",
		"garbage":         "not-a-phc-hash",
		"bcrypt":          "$2a$10$abcdefghijklmnopqrstuuXyz",
		"wrong algorithm": "$argon2i$" + strings.Join(parts[2:], "$"),
		"wrong version":   "$argon2id$v=16$" + strings.Join(parts[3:], "$"),
		"missing param":   "$argon2id$v=19$m=65536,t=2$" + parts[4] + "$" + parts[5],
		"zero time":       "$argon2id$v=19$m=65536,t=0,p=1$" + parts[4] + "$" + parts[5],
		"huge memory":     "$argon2id$v=19$m=99999999,t=2,p=1$" + parts[4] + "$" + parts[5],
		"duplicate param": "$argon2id$v=19$m=65536,m=65536,p=1$" + parts[4] + "$" + parts[5],
		"bad salt":        "$argon2id$v=19$m=65536,t=2,p=1$!!!$" + parts[5],
		"bad digest":      "$argon2id$v=19$m=65536,t=2,p=1$" + parts[4] + "$@@@",
		"truncated":       valid[:len(valid)/2],
		"extra section":   valid + "$extra",
	}
	for name, encoded := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, h.Verify("pw", encoded))
			})
		})
	}
}

func TestHasher_NilFailsClosed(t *testing.T) {
	var h *Hasher
	assert.False(t, h.Verify("pw", dummyHash))
}

func TestNewHasher_ShortPepper(t *testing.T) {
	_, err := NewHasher([]byte("short"))
	assert.ErrorIs(t, err, ErrPepperTooShort)
}

func TestLoadPepper(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "pepper")
	require.NoError(t, os.WriteFile(good, pepperA, 0o600))
	got, err := LoadPepper(good)
	require.NoError(t, err)
	assert.Equal(t, pepperA, got)

	short := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(short, []byte("tiny"), 0o600))
	_, err = LoadPepper(short)
	assert.ErrorIs(t, err, ErrPepperTooShort)

	_, err = LoadPepper(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestDummyHashIsWellFormed(t *testing.T) {
	parsed, err := parsePHC(dummyHash)
	require.NoError(t, err)
	assert.Equal(t, DefaultParams, parsed.params)
}
