package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Supported password hash algorithms.
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

const (
	argon2SaltLength = 16
	argon2KeyLength  = 32
	argon2Prefix     = "$argon2id$"
)

var (
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("crypto: malformed password hash")
	// ErrHashFailed wraps failures producing a new hash.
	ErrHashFailed = errors.New("crypto: hash password")
)

// HasherConfig selects the algorithm and its work factors. Zero values fall
// back to DefaultHasherConfig.
type HasherConfig struct {
	Algorithm       string
	BcryptCost      int
	Argon2Time      uint32
	Argon2MemoryKiB uint32
	Argon2Threads   uint8
}

// Upper bounds on argon2id cost parameters accepted by NewHasher.
const (
	MaxArgon2Time      = 64
	MaxArgon2MemoryKiB = 1 << 20
)

// DefaultHasherConfig returns bcrypt at cost 12 with argon2id parameters
// ready should the algorithm be switched.
func DefaultHasherConfig() HasherConfig {
	return HasherConfig{
		Algorithm:       AlgorithmBcrypt,
		BcryptCost:      12,
		Argon2Time:      3,
		Argon2MemoryKiB: 64 * 1024,
		Argon2Threads:   2,
	}
}

// Hasher produces and checks one-way password hashes.
type Hasher struct {
	cfg  HasherConfig
	rand io.Reader
}

// NewHasher validates cfg and returns a Hasher.
func NewHasher(cfg HasherConfig) (*Hasher, error) {
	def := DefaultHasherConfig()
	if cfg.Algorithm == "" {
		cfg.Algorithm = def.Algorithm
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = def.BcryptCost
	}
	if cfg.Argon2Time == 0 {
		cfg.Argon2Time = def.Argon2Time
	}
	if cfg.Argon2MemoryKiB == 0 {
		cfg.Argon2MemoryKiB = def.Argon2MemoryKiB
	}
	if cfg.Argon2Threads == 0 {
		cfg.Argon2Threads = def.Argon2Threads
	}
	cfg.Algorithm = strings.ToLower(strings.TrimSpace(cfg.Algorithm))
	if cfg.Argon2Time > MaxArgon2Time {
		return nil, fmt.Errorf("crypto: argon2 time %d exceeds %d", cfg.Argon2Time, MaxArgon2Time)
	}
	if cfg.Argon2MemoryKiB > MaxArgon2MemoryKiB {
		return nil, fmt.Errorf("crypto: argon2 memory %d KiB exceeds %d KiB", cfg.Argon2MemoryKiB, MaxArgon2MemoryKiB)
	}
	if cfg.Argon2MemoryKiB < 8*uint32(cfg.Argon2Threads) {
		return nil, fmt.Errorf("crypto: argon2 memory %d KiB below 8 KiB per thread", cfg.Argon2MemoryKiB)
	}
	switch cfg.Algorithm {
	case AlgorithmBcrypt:
		if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
			return nil, fmt.Errorf("crypto: bcrypt cost %d out of range", cfg.BcryptCost)
		}
	case AlgorithmArgon2id:
	default:
		return nil, fmt.Errorf("crypto: unsupported hash algorithm %q", cfg.Algorithm)
	}
	return &Hasher{cfg: cfg, rand: rand.Reader}, nil
}

// Algorithm reports the algorithm new hashes are produced with.
func (h *Hasher) Algorithm() string {
	return h.cfg.Algorithm
}

// Hash returns a salted hash of password in the configured format.
func (h *Hasher) Hash(password string) (string, error) {
	if h.cfg.Algorithm == AlgorithmArgon2id {
		return h.hashArgon2id(password)
	}
	out, err := bcrypt.GenerateFromPassword([]byte(password), h.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrHashFailed, err)
	}
	return string(out), nil
}

// Verify checks password against stored. The stored format decides the
// algorithm, so hashes written under a previous setting keep working.
// A mismatch is (false, nil).
func (h *Hasher) Verify(password, stored string) (bool, error) {
	switch {
	case strings.HasPrefix(stored, argon2Prefix):
		return verifyArgon2id(password, stored)
	case strings.HasPrefix(stored, "$2a$"), strings.HasPrefix(stored, "$2b$"), strings.HasPrefix(stored, "$2y$"):
		err := bcrypt.CompareHashAndPassword([]byte(stored), []byte(password))
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
			return false, nil
		default:
			return false, fmt.Errorf("%w: %w", ErrMalformedHash, err)
		}
	default:
		return false, ErrMalformedHash
	}
}

func (h *Hasher) hashArgon2id(password string) (string, error) {
	salt := make([]byte, argon2SaltLength)
	if _, err := io.ReadFull(h.rand, salt); err != nil {
		return "", fmt.Errorf("%w: read salt: %w", ErrHashFailed, err)
	}
	key := argon2.IDKey([]byte(password), salt, h.cfg.Argon2Time, h.cfg.Argon2MemoryKiB, h.cfg.Argon2Threads, argon2KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.cfg.Argon2MemoryKiB, h.cfg.Argon2Time, h.cfg.Argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// verifyArgon2id parses $argon2id$v=19$m=65536,t=3,p=2$salt$hash and
// recomputes with the embedded parameters.
func verifyArgon2id(password, stored string) (bool, error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 6 || parts[1] != AlgorithmArgon2id {
		return false, ErrMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrMalformedHash
	}
	var (
		memory  uint32
		time    uint32
		threads uint8
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, ErrMalformedHash
	}
	if memory == 0 || time == 0 || threads == 0 || memory > MaxArgon2MemoryKiB || time > MaxArgon2Time {
		return false, ErrMalformedHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return false, ErrMalformedHash
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false, ErrMalformedHash
	}
	got := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
