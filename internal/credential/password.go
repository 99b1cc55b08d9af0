// Package credential derives password digests and bearer secrets.
//
// Password digests are argon2id in PHC string format:
//
//	$argon2id$v=19$m=<memory KiB>,t=<time>,p=<threads>$<salt>$<hash>
//
// The argon2id input is HMAC-SHA256(pepper, password). The salt is a fresh 64 character
// alphanumeric string per digest. Parameters travel inside the digest, so changing the
// configured cost never invalidates stored digests.
package credential

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"github.com/pickupper/backend/internal/model"
)

// SaltLength is the number of alphanumeric characters in every salt.
const SaltLength = 64

const minKeyLength = 16

var ErrInvalidParams = errors.New("invalid argon2id parameters")

// Params are the argon2id cost parameters. Memory is in KiB.
type Params struct {
	Memory  uint32
	Time    uint32
	Threads uint8
	KeyLen  uint32
}

// DefaultParams mirror the recommended argon2id baseline.
var DefaultParams = Params{Memory: 64 * 1024, Time: 3, Threads: 1, KeyLen: 32}

func (p Params) Validate() error {
	switch {
	case p.Time < 1:
		return fmt.Errorf("%w: time cost must be at least 1", ErrInvalidParams)
	case p.Threads < 1:
		return fmt.Errorf("%w: parallelism must be at least 1", ErrInvalidParams)
	case p.Memory < 8*uint32(p.Threads):
		return fmt.Errorf("%w: memory cost must be at least 8 KiB per lane", ErrInvalidParams)
	case p.KeyLen < minKeyLength:
		return fmt.Errorf("%w: key length must be at least %d bytes", ErrInvalidParams, minKeyLength)
	}
	return nil
}

// HashWithSalt derives the encoded digest of password. It is deterministic for a given salt.
func HashWithSalt(password, pepper, salt string, params Params) (string, error) {
	if err := params.Validate(); err != nil {
		return "", err
	}
	if len(salt) < 8 {
		return "", fmt.Errorf("%w: salt too short", ErrInvalidParams)
	}
	key := argon2.IDKey(pepperedInput(password, pepper), []byte(salt), params.Time, params.Memory, params.Threads, params.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		params.Memory, params.Time, params.Threads,
		base64.RawStdEncoding.EncodeToString([]byte(salt)),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyDigest checks password against an encoded digest.
// A wrong password or pepper yields false with a nil error; only a malformed digest errors.
func VerifyDigest(password, encoded, pepper string) (bool, error) {
	if isBcrypt(encoded) {
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
			return false, nil
		default:
			return false, fmt.Errorf("verifying bcrypt digest: %w", err)
		}
	}

	salt, hash, params, err := decodePHC(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey(pepperedInput(password, pepper), salt, params.Time, params.Memory, params.Threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, candidate) == 1, nil
}

func pepperedInput(password, pepper string) []byte {
	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(password))
	return mac.Sum(nil)
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") || strings.HasPrefix(encoded, "$2b$") || strings.HasPrefix(encoded, "$2y$")
}

func decodePHC(encoded string) (salt, hash []byte, params Params, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, nil, params, errors.New("invalid PHC digest format")
	}
	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version: %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return nil, nil, params, fmt.Errorf("parsing parameters: %w", err)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}
	params.KeyLen = uint32(len(hash))
	if err := params.Validate(); err != nil {
		return nil, nil, params, err
	}
	return salt, hash, params, nil
}

// Hasher hashes and verifies passwords with a fixed pepper and cost.
// At most `workers` derivations run at once; callers wait for a slot or their context.
//
// Thread Safety:
//   - Safe for concurrent use; all fields are read-only after NewHasher.
type Hasher struct {
	pepper string
	params Params
	slots  *semaphore.Weighted
}

// NewHasher validates params up front. workers <= 0 means runtime.NumCPU().
func NewHasher(pepper string, params Params, workers int) (*Hasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Hasher{
		pepper: pepper,
		params: params,
		slots:  semaphore.NewWeighted(int64(workers)),
	}, nil
}

func (h *Hasher) Params() Params { return h.params }

// Hash draws a fresh salt and returns the encoded digest.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	salt, err := RandomString(SaltLength)
	if err != nil {
		return "", model.Hashing(err)
	}
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return "", model.Internal(err)
	}
	defer h.slots.Release(1)

	digest, err := HashWithSalt(password, h.pepper, salt, h.params)
	if err != nil {
		return "", model.Hashing(err)
	}
	return digest, nil
}

func (h *Hasher) Verify(ctx context.Context, password, encoded string) (bool, error) {
	if err := h.slots.Acquire(ctx, 1); err != nil {
		return false, model.Internal(err)
	}
	defer h.slots.Release(1)

	ok, err := VerifyDigest(password, encoded, h.pepper)
	if err != nil {
		return false, model.Hashing(err)
	}
	return ok, nil
}

// NeedsRehash reports whether encoded was produced by bcrypt or with other argon2id params.
func (h *Hasher) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	_, _, params, err := decodePHC(encoded)
	if err != nil {
		return false
	}
	return params != h.params
}
