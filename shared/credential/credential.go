package credential

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

var ErrMismatch = errors.New("credential mismatch")

// ErrUnknownScheme is returned for hashes no verifier recognises.
var ErrUnknownScheme = errors.New("unknown credential hash scheme")

// Verifier checks a secret against one hash scheme.
type Verifier interface {
	Scheme() string
	// Matches reports whether the stored hash belongs to this scheme.
	Matches(hash string) bool
	Verify(hash, password string) error
}

type Bcrypt struct {
	Cost int
}

func (Bcrypt) Scheme() string { return "bcrypt" }

func (Bcrypt) Matches(hash string) bool {
	_, err := bcrypt.Cost([]byte(hash))
	return err == nil
}

func (b Bcrypt) Hash(password string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt hash: %w", err)
	}
	return string(h), nil
}

func (Bcrypt) Verify(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}

var sha256Hex = regexp.MustCompile(`^[0-9a-f]{64}$`)

// LegacySHA256 is the unsalted hex SHA-256 used by early accounts.
// It can only be verified, never issued.
type LegacySHA256 struct{}

func (LegacySHA256) Scheme() string { return "sha256" }

func (LegacySHA256) Matches(hash string) bool {
	return sha256Hex.MatchString(hash)
}

func (LegacySHA256) Verify(hash, password string) error {
	sum := sha256.Sum256([]byte(password))
	want, err := hex.DecodeString(hash)
	if err != nil {
		return ErrMismatch
	}
	if subtle.ConstantTimeCompare(sum[:], want) != 1 {
		return ErrMismatch
	}
	return nil
}

// IsLegacy reports whether hash was produced by the legacy scheme.
func IsLegacy(hash string) bool {
	return LegacySHA256{}.Matches(hash)
}

// Registry picks a verifier by hash format. New hashes always use Bcrypt.
type Registry struct {
	hasher    Bcrypt
	verifiers []Verifier
	dummy     string
}

func NewRegistry(cost int) (*Registry, error) {
	b := Bcrypt{Cost: cost}
	dummy, err := b.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, err
	}
	return &Registry{
		hasher:    b,
		verifiers: []Verifier{b, LegacySHA256{}},
		dummy:     dummy,
	}, nil
}

func (r *Registry) Hash(password string) (string, error) {
	return r.hasher.Hash(password)
}

// Verify checks password against hash. needsReset is true when the hash
// uses a scheme that must be replaced by a password reset.
func (r *Registry) Verify(hash, password string) (needsReset bool, err error) {
	for _, v := range r.verifiers {
		if !v.Matches(hash) {
			continue
		}
		if err := v.Verify(hash, password); err != nil {
			return false, err
		}
		return v.Scheme() != r.hasher.Scheme(), nil
	}
	return false, ErrUnknownScheme
}

// BurnTime runs a comparison against a throwaway hash so lookups of unknown
// accounts take as long as real ones.
func (r *Registry) BurnTime(password string) {
	_ = r.hasher.Verify(r.dummy, password)
}
