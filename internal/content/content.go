// Package content normalizes inbound chat text before it reaches the ledger.
package content

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/nfrund/relay/internal/domain"
)

// Normalizer normalizes to NFC, drops control characters and enforces a
// length bound. Content is plain text and is otherwise kept as sent; escaping
// is the renderer's job. It is safe for concurrent use.
type Normalizer struct {
	maxLength int
}

// NewNormalizer returns a normalizer rejecting content longer than maxLength
// runes. A non-positive maxLength disables the bound.
func NewNormalizer(maxLength int) *Normalizer {
	return &Normalizer{maxLength: maxLength}
}

// Normalize returns the cleaned content or an error wrapping
// domain.ErrMalformedInboundMessage.
func (n *Normalizer) Normalize(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", fmt.Errorf("%w: content is not valid UTF-8", domain.ErrMalformedInboundMessage)
	}

	text := norm.NFC.String(raw)
	text = strings.Map(dropControl, text)
	text = strings.TrimSpace(text)

	if text == "" {
		return "", fmt.Errorf("%w: content is empty", domain.ErrMalformedInboundMessage)
	}
	if n.maxLength > 0 && utf8.RuneCountInString(text) > n.maxLength {
		return "", fmt.Errorf("%w: content exceeds %d characters", domain.ErrMalformedInboundMessage, n.maxLength)
	}
	return text, nil
}

// dropControl removes control characters other than newlines and tabs.
func dropControl(r rune) rune {
	if r == '\n' || r == '\t' {
		return r
	}
	if unicode.IsControl(r) {
		return -1
	}
	return r
}
