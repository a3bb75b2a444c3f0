// Package ids implements the engine's process identifier codec: a 27-character,
// URL-safe encoding of a random 128-bit value with a weighted check digit.
package ids

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

// Alphabet is Crockford base32 minus I, L, O and U, chosen so no decoded
// character can be confused with another and every character is
// URL-unreserved.
const Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Length is the total size of a generated identifier: 26 encoded characters
// plus one check digit.
const Length = 27

var decodeMap = func() map[byte]int {
	m := make(map[byte]int, len(Alphabet))
	for i := 0; i < len(Alphabet); i++ {
		m[Alphabet[i]] = i
	}
	return m
}()

var big32 = big.NewInt(32)

// ErrInvalidFormat is returned when a string is not 27 characters over Alphabet.
var ErrInvalidFormat = errors.New("ids: invalid format")

// ErrCheckDigitMismatch is returned when the check digit does not match the
// recomputed value.
var ErrCheckDigitMismatch = errors.New("ids: check digit mismatch")

// New generates a fresh identifier backed by a random UUIDv4.
func New() string {
	return Encode(uuid.New())
}

// Encode renders a UUID as a 27-character identifier: 26 base32 digits
// (most-significant first) followed by a weighted-sum check digit.
func Encode(id uuid.UUID) string {
	value := new(big.Int).SetBytes(id[:])

	digits := make([]byte, 26)
	rem := new(big.Int)
	for i := len(digits) - 1; i >= 0; i-- {
		value.DivMod(value, big32, rem)
		digits[i] = Alphabet[rem.Int64()]
	}
	encoded := string(digits)
	return encoded + string(checkDigit(encoded))
}

// Decode parses a 27-character identifier back into its UUID, verifying the
// check digit. Input is normalized to upper case before validation.
func Decode(id string) (uuid.UUID, error) {
	id = strings.ToUpper(id)
	if !validFormat(id) {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidFormat, id)
	}
	encoded, check := id[:26], id[26]
	if checkDigit(encoded) != check {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrCheckDigitMismatch, id)
	}

	value := new(big.Int)
	for i := 0; i < len(encoded); i++ {
		value.Mul(value, big32)
		value.Add(value, big.NewInt(int64(decodeMap[encoded[i]])))
	}

	raw := value.Bytes()
	if len(raw) > 16 {
		return uuid.Nil, fmt.Errorf("%w: %q decodes to a value too large for a UUID", ErrInvalidFormat, id)
	}
	var out uuid.UUID
	// big.Int.Bytes() drops leading zero bytes; right-align into the 16-byte UUID.
	copy(out[16-len(raw):], raw)
	return out, nil
}

// Validate reports whether id is a well-formed, check-digit-correct identifier.
func Validate(id string) bool {
	_, err := Decode(id)
	return err == nil
}

func validFormat(id string) bool {
	if len(id) != Length {
		return false
	}
	for i := 0; i < len(id); i++ {
		if _, ok := decodeMap[id[i]]; !ok {
			return false
		}
	}
	return true
}

// checkDigit computes the weighted modulo-32 check digit: sum(value(c_i)*(i+1)) mod 32.
func checkDigit(encoded string) byte {
	sum := 0
	for i := 0; i < len(encoded); i++ {
		sum += decodeMap[encoded[i]] * (i + 1)
	}
	return Alphabet[sum%32]
}
