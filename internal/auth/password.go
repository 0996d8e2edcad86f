package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	MinPepperLength = 16

	algorithmID = "argon2id"
	saltLength  = 16
	keyLength   = 32

	// Upper bounds accepted when verifying a stored hash.
	maxMemoryKB    = 1024 * 1024
	maxTime        = 16
	maxParallelism = 16
)

var ErrPepperTooShort = fmt.Errorf("pepper must be at least %d bytes", MinPepperLength)

// Params are the argon2id cost parameters.
type Params struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
}

// DefaultParams is used for every newly issued hash.
var DefaultParams = Params{Memory: 64 * 1024, Time: 2, Parallelism: 1}

// Hasher hashes and verifies passwords with argon2id keyed by a
// process-wide pepper. The pepper is never part of the encoded hash.
type Hasher struct {
	pepper []byte
	params Params
}

func NewHasher(pepper []byte) (*Hasher, error) {
	if len(pepper) < MinPepperLength {
		return nil, ErrPepperTooShort
	}
	p := make([]byte, len(pepper))
	copy(p, pepper)
	return &Hasher{pepper: p, params: DefaultParams}, nil
}

// LoadPepper reads the raw pepper bytes from path.
func LoadPepper(path string) ([]byte, error) {
	pepper, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pepper file: %w", err)
	}
	if len(pepper) < MinPepperLength {
		return nil, ErrPepperTooShort
	}
	return pepper, nil
}

// Hash returns a PHC-formatted argon2id hash of password.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey(h.keyed(password), salt, h.params.Time, h.params.Memory, h.params.Parallelism, keyLength)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. Any malformed input or
// internal failure yields false.
func (h *Hasher) Verify(password, encoded string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	if h == nil || len(h.pepper) < MinPepperLength {
		return false
	}

	parsed, err := parsePHC(encoded)
	if err != nil {
		return false
	}

	computed := argon2.IDKey(h.keyed(password), parsed.salt, parsed.params.Time, parsed.params.Memory, parsed.params.Parallelism, uint32(len(parsed.hash)))
	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1
}

func (h *Hasher) keyed(password string) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(password))
	return mac.Sum(nil)
}

type parsedPHC struct {
	params Params
	salt   []byte
	hash   []byte
}

func parsePHC(encoded string) (*parsedPHC, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, errors.New("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return nil, errors.New("unsupported argon2 version")
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := decodeB64(parts[4])
	if err != nil || len(salt) < 8 {
		return nil, errors.New("invalid salt")
	}
	hash, err := decodeB64(parts[5])
	if err != nil || len(hash) < 16 || len(hash) > 64 {
		return nil, errors.New("invalid hash")
	}

	return &parsedPHC{params: params, salt: salt, hash: hash}, nil
}

func parseParams(part string) (Params, error) {
	var (
		p                   Params
		seenM, seenT, seenP bool
	)
	for _, pair := range strings.Split(part, ",") {
		k, v, found := strings.Cut(pair, "=")
		if !found {
			return p, errors.New("invalid parameter entry")
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return p, errors.New("invalid parameter value")
		}
		switch {
		case k == "m" && !seenM && n >= 8 && n <= maxMemoryKB:
			p.Memory, seenM = uint32(n), true
		case k == "t" && !seenT && n >= 1 && n <= maxTime:
			p.Time, seenT = uint32(n), true
		case k == "p" && !seenP && n >= 1 && n <= maxParallelism:
			p.Parallelism, seenP = uint8(n), true
		default:
			return p, errors.New("unsupported parameter")
		}
	}
	if !seenM || !seenT || !seenP {
		return p, errors.New("missing parameters")
	}
	if p.Memory < 8*uint32(p.Parallelism) {
		return p, errors.New("memory below parallelism minimum")
	}
	return p, nil
}

// decodeB64 accepts both the unpadded PHC encoding and padded base64.
func decodeB64(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// MinPasswordLength applies to passwords set through the admin surface.
const MinPasswordLength = 8

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
