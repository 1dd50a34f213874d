package credential

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/moguedu/accredit/pkg/config"
)

const (
	saltBytes  = 16
	keyBytes   = 32
	tokenBytes = 32

	argon2idPrefix = "$argon2id$"
)

var errMalformedDigest = errors.New("malformed password digest")

// Params are the argon2id cost parameters.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

// ParamsFromConfig converts the auth.argon2 config section.
func ParamsFromConfig(cfg config.Argon2Config) Params {
	return Params{
		MemoryKiB:   cfg.MemoryKiB,
		Iterations:  cfg.Iterations,
		Parallelism: cfg.Parallelism,
	}
}

// Hasher hashes and verifies admin passwords.
type Hasher struct {
	params Params
}

// NewHasher creates a Hasher that produces digests with the given parameters.
func NewHasher(params Params) *Hasher {
	return &Hasher{params: params}
}

// Hash derives an argon2id digest of password with a fresh random salt.
// The digest is self-describing:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey(
		[]byte(password), salt,
		h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism,
		keyBytes,
	)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2idPrefix,
		argon2.Version,
		h.params.MemoryKiB, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches digest. Legacy bcrypt digests are
// accepted. Malformed digests never match.
func (h *Hasher) Verify(password, digest string) bool {
	if isBcrypt(digest) {
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
	}

	d, err := parseArgon2id(digest)
	if err != nil {
		return false
	}

	key := argon2.IDKey(
		[]byte(password), d.salt,
		d.params.Iterations, d.params.MemoryKiB, d.params.Parallelism,
		uint32(len(d.key)),
	)

	return subtle.ConstantTimeCompare(key, d.key) == 1
}

// NeedsRehash reports whether digest should be replaced with a fresh Hash,
// either because it is a legacy bcrypt digest or because its cost
// parameters differ from the Hasher's.
func (h *Hasher) NeedsRehash(digest string) bool {
	if isBcrypt(digest) {
		return true
	}

	d, err := parseArgon2id(digest)
	if err != nil {
		return true
	}

	return d.params != h.params || len(d.key) != keyBytes
}

// GenerateToken returns a random hex-encoded session token.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}

	return hex.EncodeToString(b), nil
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

type argon2idDigest struct {
	params Params
	salt   []byte
	key    []byte
}

func parseArgon2id(digest string) (*argon2idDigest, error) {
	if !strings.HasPrefix(digest, argon2idPrefix) {
		return nil, errMalformedDigest
	}

	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(digest, "$")
	if len(parts) != 6 {
		return nil, errMalformedDigest
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, errMalformedDigest
	}

	if version != argon2.Version {
		return nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var d argon2idDigest
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&d.params.MemoryKiB, &d.params.Iterations, &d.params.Parallelism,
	); err != nil {
		return nil, errMalformedDigest
	}

	if d.params.MemoryKiB == 0 || d.params.Iterations == 0 || d.params.Parallelism == 0 {
		return nil, errMalformedDigest
	}

	var err error

	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, errMalformedDigest
	}

	if d.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, errMalformedDigest
	}

	if len(d.key) == 0 {
		return nil, errMalformedDigest
	}

	return &d, nil
}
