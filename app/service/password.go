package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/vibast-solutions/ms-go-accounts/config"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

var ErrUnsupportedHash = errors.New("unsupported password hash")

// PasswordHasher hashes and verifies user passwords. Hash output embeds its own
// random salt and parameters.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// NewPasswordHasher hashes with the configured algorithm and verifies any
// supported encoding, so changing PASSWORD_HASHER does not lock out existing users.
func NewPasswordHasher(cfg config.PasswordConfig) PasswordHasher {
	bc := NewBcryptHasher(cfg.BcryptCost)
	a2 := NewArgon2idHasher(cfg.Argon2)

	primary := PasswordHasher(bc)
	if cfg.Hasher == "argon2id" {
		primary = a2
	}

	return &multiHasher{primary: primary, bcrypt: bc, argon2id: a2}
}

type multiHasher struct {
	primary  PasswordHasher
	bcrypt   PasswordHasher
	argon2id PasswordHasher
}

func (h *multiHasher) Hash(password string) (string, error) {
	return h.primary.Hash(password)
}

func (h *multiHasher) Verify(password, encodedHash string) (bool, error) {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return h.argon2id.Verify(password, encodedHash)
	case strings.HasPrefix(encodedHash, "$2a$"), strings.HasPrefix(encodedHash, "$2b$"), strings.HasPrefix(encodedHash, "$2y$"):
		return h.bcrypt.Verify(password, encodedHash)
	default:
		return false, ErrUnsupportedHash
	}
}

type bcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (h *bcryptHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (h *bcryptHasher) Verify(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}

const (
	argon2SaltLength = 16
	argon2KeyLength  = 32
)

type argon2idHasher struct {
	params config.Argon2Config
}

func NewArgon2idHasher(params config.Argon2Config) PasswordHasher {
	if params.MemoryKiB == 0 {
		params.MemoryKiB = 64 * 1024
	}
	if params.Iterations == 0 {
		params.Iterations = 3
	}
	if params.Parallelism == 0 {
		params.Parallelism = 2
	}
	return &argon2idHasher{params: params}
}

// Hash encodes as $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<key_b64>.
func (h *argon2idHasher) Hash(password string) (string, error) {
	salt := make([]byte, argon2SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Parallelism, argon2KeyLength)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	), nil
}

func (h *argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != fmt.Sprintf("v=%d", argon2.Version) {
		return false, ErrUnsupportedHash
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, ErrUnsupportedHash
	}
	// Refuse hashes whose cost is far above ours; the string may come from a tampered row.
	if memory == 0 || iterations == 0 || parallelism == 0 ||
		memory > h.params.MemoryKiB*4 || iterations > h.params.Iterations*4 {
		return false, ErrUnsupportedHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return false, ErrUnsupportedHash
	}
	expected, err := b64.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return false, ErrUnsupportedHash
	}

	key := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(expected)))
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}
