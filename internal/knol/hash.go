package knol

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/conorfennell/flashdeck/internal/domain"
)

// Normalize concatenates the card's content after cleaning each part.
// It trims whitespace, lowercases, and normalizes line endings for each field
// before joining them.
func Normalize(in domain.CardInput) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		p = strings.TrimSpace(p)
		return p
	}

	// Joined with a newline so adjacent fields cannot run together.
	return strings.Join([]string{
		normalizePart(in.Front),
		normalizePart(in.Back),
		normalizePart(in.DeckName),
	}, "\n")
}

// Hash returns the SHA-256 of the normalized card content as a hex string.
// Cards that differ only in case, surrounding whitespace or line endings
// share a hash, which is how re-imports are recognised.
func Hash(in domain.CardInput) string {
	sum := sha256.Sum256([]byte(Normalize(in)))
	return fmt.Sprintf("%x", sum)
}
