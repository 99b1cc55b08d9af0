package credential

import (
	"crypto/sha256"
	"encoding/hex"
)

// TokenLength is the length of every bearer secret handed to clients.
const TokenLength = 64

// GeneratedToken holds a fresh bearer secret and the digest that gets persisted.
// Secret must be returned to the client once and never stored.
type GeneratedToken struct {
	Secret string
	Digest string
}

func GenerateToken() (GeneratedToken, error) {
	secret, err := RandomString(TokenLength)
	if err != nil {
		return GeneratedToken{}, err
	}
	return GeneratedToken{Secret: secret, Digest: DigestToken(secret)}, nil
}

// DigestToken is the lowercase hex sha256 of a bearer secret. Secrets are high-entropy,
// so no salt and no memory-hard function are used here.
func DigestToken(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// LooksLikeToken reports whether s has the shape of an issued secret.
func LooksLikeToken(s string) bool {
	return len(s) == TokenLength && isAlphanumeric(s)
}
