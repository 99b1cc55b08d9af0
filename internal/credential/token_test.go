package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 64; i++ {
		tok, err := GenerateToken()
		require.NoError(t, err)

		assert.Len(t, tok.Secret, TokenLength)
		assert.True(t, LooksLikeToken(tok.Secret))
		assert.Equal(t, DigestToken(tok.Secret), tok.Digest)
		assert.Len(t, tok.Digest, 64)

		_, dup := seen[tok.Secret]
		require.False(t, dup, "secret repeated")
		seen[tok.Secret] = struct{}{}
	}
}

func TestDigestToken_KnownValue(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", DigestToken("abc"))
}

func TestRandomString_Alphabet(t *testing.T) {
	for _, n := range []int{0, 1, 7, 64, 300} {
		s, err := RandomString(n)
		require.NoError(t, err)
		assert.Len(t, s, n)
		assert.True(t, isAlphanumeric(s))
	}
}

func TestLooksLikeToken(t *testing.T) {
	assert.False(t, LooksLikeToken(""))
	assert.False(t, LooksLikeToken("short"))
	bad := make([]byte, TokenLength)
	for i := range bad {
		bad[i] = 'a'
	}
	bad[10] = '-'
	assert.False(t, LooksLikeToken(string(bad)))
}
