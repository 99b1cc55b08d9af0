package credential

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pickupper/backend/internal/model"
)

// testParams keeps argon2id cheap enough for unit tests.
var testParams = Params{Memory: 64, Time: 1, Threads: 1, KeyLen: 32}

func printableASCII() string {
	var b strings.Builder
	for c := byte(0x20); c < 0x7f; c++ {
		b.WriteByte(c)
	}
	return b.String()
}

func TestHashWithSalt_RoundTrip(t *testing.T) {
	salt, err := RandomString(SaltLength)
	require.NoError(t, err)

	passwords := []string{
		"",
		"admin",
		"correct-horse-battery-staple",
		printableASCII(),
		strings.Repeat("~", 128),
		` !"#$%&'()*+,-./:;<=>?@[\]^_{|}`,
	}
	for _, password := range passwords {
		digest, err := HashWithSalt(password, "pepper", salt, testParams)
		require.NoError(t, err)

		ok, err := VerifyDigest(password, digest, "pepper")
		require.NoError(t, err)
		assert.True(t, ok, "password %q should verify", password)
	}
}

func TestVerifyDigest_WrongPasswordOrPepper(t *testing.T) {
	digest, err := HashWithSalt("admin", "pepper", strings.Repeat("s", SaltLength), testParams)
	require.NoError(t, err)

	ok, err := VerifyDigest("Admin", digest, "pepper")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = VerifyDigest("admin", digest, "other-pepper")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = VerifyDigest("admin", digest, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashWithSalt_PHCFormat(t *testing.T) {
	digest, err := HashWithSalt("test", "pepper", strings.Repeat("a", SaltLength), testParams)
	require.NoError(t, err)

	parts := strings.Split(digest, "$")
	require.Len(t, parts, 6)
	assert.Equal(t, "argon2id", parts[1])
	assert.Equal(t, "v=19", parts[2])
	assert.Equal(t, "m=64,t=1,p=1", parts[3])
}

func TestHashWithSalt_InvalidParams(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"zero time", Params{Memory: 64, Time: 0, Threads: 1, KeyLen: 32}},
		{"zero lanes", Params{Memory: 64, Time: 1, Threads: 0, KeyLen: 32}},
		{"memory below lanes", Params{Memory: 8, Time: 1, Threads: 4, KeyLen: 32}},
		{"short key", Params{Memory: 64, Time: 1, Threads: 1, KeyLen: 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := HashWithSalt("password", "pepper", strings.Repeat("a", SaltLength), tt.params)
			assert.ErrorIs(t, err, ErrInvalidParams)

			_, err = NewHasher("pepper", tt.params, 1)
			assert.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestVerifyDigest_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		digest string
	}{
		{"empty", ""},
		{"plaintext", "admin"},
		{"wrong algorithm", "$argon2i$v=19$m=64,t=1,p=1$c2FsdA$aGFzaA"},
		{"too few parts", "$argon2id$v=19$m=64,t=1,p=1"},
		{"bad version", "$argon2id$v=16$m=64,t=1,p=1$c2FsdHNhbHQ$aGFzaGhhc2hoYXNoaGFzaA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := VerifyDigest("admin", tt.digest, "pepper")
			assert.Error(t, err)
			assert.False(t, ok)
		})
	}
}

func TestHasher_FreshSaltPerHash(t *testing.T) {
	h, err := NewHasher("pepper", testParams, 2)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := h.Hash(ctx, "same-password")
	require.NoError(t, err)
	second, err := h.Hash(ctx, "same-password")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	salt, err := decodeSalt(first)
	require.NoError(t, err)
	assert.Len(t, salt, SaltLength)
	assert.True(t, isAlphanumeric(salt))

	ok, err := h.Verify(ctx, "same-password", second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasher_ParamsChangeKeepsOldDigests(t *testing.T) {
	ctx := context.Background()
	old, err := NewHasher("pepper", testParams, 1)
	require.NoError(t, err)
	digest, err := old.Hash(ctx, "rotate-me")
	require.NoError(t, err)

	stronger := testParams
	stronger.Time = 2
	current, err := NewHasher("pepper", stronger, 1)
	require.NoError(t, err)

	ok, err := current.Verify(ctx, "rotate-me", digest)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, current.NeedsRehash(digest))
	assert.False(t, old.NeedsRehash(digest))
}

func TestHasher_MalformedDigestIsHashingError(t *testing.T) {
	h, err := NewHasher("pepper", testParams, 1)
	require.NoError(t, err)

	ok, err := h.Verify(context.Background(), "admin", "not-a-digest")
	assert.False(t, ok)
	assert.ErrorIs(t, err, model.ErrHashing)
}

func TestHasher_CancelledContext(t *testing.T) {
	h, err := NewHasher("pepper", testParams, 1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = h.Hash(ctx, "admin")
	assert.ErrorIs(t, err, model.ErrInternal)
}

func TestVerifyDigest_LegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("legacy-password"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := VerifyDigest("legacy-password", string(legacy), "pepper")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyDigest("wrong", string(legacy), "pepper")
	require.NoError(t, err)
	assert.False(t, ok)

	h, err := NewHasher("pepper", testParams, 1)
	require.NoError(t, err)
	assert.True(t, h.NeedsRehash(string(legacy)))
}

func decodeSalt(digest string) (string, error) {
	salt, _, _, err := decodePHC(digest)
	return string(salt), err
}
