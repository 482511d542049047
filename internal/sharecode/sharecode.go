package sharecode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// Alphabet deliberately drops visually confusable characters (0/O, 1/I/L)
// so codes survive being read aloud or scribbled on a napkin.
const Alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Length of every issued share code.
const Length = 6

// maxUnbiased is the largest multiple of len(Alphabet) that fits a byte;
// bytes at or above it are rejected to keep the character draw uniform.
const maxUnbiased = 256 - 256%len(Alphabet)

// New returns a fresh share code. Uniqueness is enforced by the storage
// layer's unique constraint; callers retry on collision.
func New() (string, error) {
	out := make([]byte, 0, Length)
	buf := make([]byte, Length)
	for len(out) < Length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("sharecode: read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, Alphabet[int(b)%len(Alphabet)])
			if len(out) == Length {
				break
			}
		}
	}
	return string(out), nil
}

// Normalize maps user input to stored form. Lookup is case-insensitive.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
