package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// IterationPrefixSeparator splits the decimal iteration count from the
	// salted digest in an encoded hash. The separator never occurs in the
	// numeric prefix or the base64 payload.
	IterationPrefixSeparator = "."

	// LegacyIterationCount is used to verify hashes stored without an
	// iteration prefix by earlier releases.
	LegacyIterationCount = 1000

	saltLength = 16
	keyLength  = 32

	iterationStartYear  = 2000
	iterationStartCount = 1000
)

var errInvalidHashFormat = errors.New("password: invalid encoded hash format")

// PasswordHasher produces self-describing password hashes of the form
// "<iterations>.<base64(salt||digest)>". Verification always uses the
// iteration count embedded in the stored value, so raising the configured
// count never invalidates existing hashes.
type PasswordHasher struct {
	// iterations <= 0 means derive the count from the calendar year at
	// hashing time.
	iterations int
	now        func() time.Time
}

// NewPasswordHasher constructs a hasher. Pass iterations <= 0 to track the
// year-derived schedule; nowFn may be nil for the system clock.
func NewPasswordHasher(iterations int, nowFn func() time.Time) *PasswordHasher {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &PasswordHasher{iterations: iterations, now: nowFn}
}

// Hash stretches the password with the configured iteration count.
func (h *PasswordHasher) Hash(password string) (string, error) {
	return h.HashWithIterations(password, h.iterations)
}

// HashWithIterations stretches the password with an explicit count;
// iterations <= 0 substitutes the year-derived value.
func (h *PasswordHasher) HashWithIterations(password string, iterations int) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	if iterations <= 0 {
		iterations = GetIterationsFromYear(h.now().UTC().Year())
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	digest := pbkdf2.Key([]byte(password), salt, iterations, keyLength, sha256.New)

	payload := make([]byte, 0, saltLength+keyLength)
	payload = append(payload, salt...)
	payload = append(payload, digest...)

	return strconv.Itoa(iterations) + IterationPrefixSeparator + base64.StdEncoding.EncodeToString(payload), nil
}

// Verify compares the password against a stored hash. It fails closed on any
// malformed prefix; hashes without a prefix verify against the legacy
// iteration count for backward compatibility.
func (h *PasswordHasher) Verify(password, hashed string) bool {
	if password == "" || hashed == "" {
		return false
	}

	iterations, payload, err := splitIterationPrefix(hashed)
	if err != nil {
		return false
	}

	salt, expected, err := decodePayload(payload)
	if err != nil {
		return false
	}

	computed := pbkdf2.Key([]byte(password), salt, iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(computed, expected) == 1
}

func splitIterationPrefix(hashed string) (int, string, error) {
	idx := strings.Index(hashed, IterationPrefixSeparator)
	if idx < 0 {
		return LegacyIterationCount, hashed, nil
	}

	prefix := hashed[:idx]
	iterations, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, "", fmt.Errorf("%w: parse iterations: %v", errInvalidHashFormat, err)
	}
	if iterations <= 0 {
		return 0, "", errInvalidHashFormat
	}

	return iterations, hashed[idx+len(IterationPrefixSeparator):], nil
}

func decodePayload(payload string) ([]byte, []byte, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: decode payload: %v", errInvalidHashFormat, err)
	}
	if len(raw) <= saltLength {
		return nil, nil, errInvalidHashFormat
	}
	return raw[:saltLength], raw[saltLength:], nil
}

// GetIterationsFromYear maps a calendar year onto a key-stretching count:
// 1000 iterations in 2000, doubling every two years, saturating at the
// maximum positive 32-bit value rather than overflowing (around 2044).
func GetIterationsFromYear(year int) int {
	if year < iterationStartYear {
		return iterationStartCount
	}

	shift := uint((year - iterationStartYear) / 2)
	if shift >= 31 {
		return math.MaxInt32
	}

	count := int64(iterationStartCount) << shift
	if count > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(count)
}
