// Package internal holds helpers shared by the engine's subsystems.
package internal

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// NewCode draws a numeric code of the given length uniformly from
// crypto/rand. Each digit is sampled independently so the distribution
// carries no modulo bias.
func NewCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != digits {
		return "", fmt.Errorf("invalid code generation length")
	}
	return code, nil
}

// MaskEmail hides most of an email address for echoing back to an
// unauthenticated caller, e.g. "fr***@ex***.com".
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return mask(email)
	}

	local := email[:at]
	domain := email[at+1:]

	dot := strings.LastIndexByte(domain, '.')
	if dot <= 0 {
		return mask(local) + "@" + mask(domain)
	}
	return mask(local) + "@" + mask(domain[:dot]) + domain[dot:]
}

// MaskPhone hides all but the last three digits of a phone number.
func MaskPhone(phone string) string {
	if len(phone) <= 3 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-3) + phone[len(phone)-3:]
}

func mask(s string) string {
	if len(s) <= 2 {
		return strings.Repeat("*", len(s))
	}
	return s[:2] + strings.Repeat("*", len(s)-2)
}
