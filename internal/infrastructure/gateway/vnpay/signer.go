// Package vnpay implements the redirect-gateway protocol: canonical query strings,
// HMAC-SHA512 signatures, payment URL construction and callback verification.
package vnpay

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

const (
	FieldSecureHash     = "vnp_SecureHash"
	FieldSecureHashType = "vnp_SecureHashType"
)

// Signer computes and checks signatures with one shared secret.
type Signer struct {
	key []byte
}

// NewSigner trims secret and keeps its Latin-1 bytes as the HMAC key.
func NewSigner(secret string) *Signer {
	return &Signer{key: latin1(strings.TrimSpace(secret))}
}

// Canonicalize sorts params by key, drops the signature fields and joins form-encoded key=value pairs with '&'.
// Empty values are kept.
func Canonicalize(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == FieldSecureHash || k == FieldSecureHashType {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(formEncode(k))
		sb.WriteByte('=')
		sb.WriteString(formEncode(params[k]))
	}
	return sb.String()
}

// Sign returns the lowercase hex HMAC-SHA512 of the canonical form of params.
func (s *Signer) Sign(params map[string]string) string {
	return s.SignCanonical(Canonicalize(params))
}

// SignCanonical signs an already canonical string, read as UTF-8 bytes.
func (s *Signer) SignCanonical(canonical string) string {
	mac := hmac.New(sha512.New, s.key)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature of params without their signature fields and
// compares it to the received vnp_SecureHash, ignoring hex case.
func (s *Signer) Verify(params map[string]string) bool {
	received := strings.ToLower(strings.TrimSpace(params[FieldSecureHash]))
	if received == "" {
		return false
	}
	expected := s.Sign(params)
	return hmac.Equal([]byte(expected), []byte(received))
}

// formEncode follows application/x-www-form-urlencoded as the gateway computes it:
// space becomes '+', '*' stays literal and '~' is escaped.
func formEncode(s string) string {
	e := url.QueryEscape(s)
	if strings.ContainsAny(e, "~%") {
		e = strings.ReplaceAll(e, "~", "%7E")
		e = strings.ReplaceAll(e, "%2A", "*")
	}
	return e
}

// latin1 maps each rune to one byte. Runes outside ISO-8859-1 become '?'.
func latin1(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			out = append(out, '?')
			continue
		}
		out = append(out, byte(r))
	}
	return out
}
