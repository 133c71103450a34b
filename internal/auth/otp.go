package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// CodeIssuer mints the one-time codes and magic link tokens used for
// passwordless sign-in. Each code comes from a fresh HOTP secret, so codes
// are independent of one another.
type CodeIssuer struct {
	digits otp.Digits
}

// NewCodeIssuer creates an issuer of six-digit codes.
func NewCodeIssuer() *CodeIssuer {
	return &CodeIssuer{digits: otp.DigitsSix}
}

// Issue returns a new one-time code and a URL-safe magic link token.
func (ci *CodeIssuer) Issue() (code string, linkToken string, err error) {
	secret := make([]byte, 20)
	if _, err := rand.Read(secret); err != nil {
		return "", "", fmt.Errorf("failed to generate code secret: %w", err)
	}

	code, err = hotp.GenerateCodeCustom(
		base32.StdEncoding.EncodeToString(secret),
		0,
		hotp.ValidateOpts{Digits: ci.digits, Algorithm: otp.AlgorithmSHA1},
	)
	if err != nil {
		return "", "", fmt.Errorf("failed to generate one-time code: %w", err)
	}

	link := make([]byte, 32)
	if _, err := rand.Read(link); err != nil {
		return "", "", fmt.Errorf("failed to generate link token: %w", err)
	}

	return code, base64.RawURLEncoding.EncodeToString(link), nil
}

// Length returns the number of digits in issued codes.
func (ci *CodeIssuer) Length() int {
	return ci.digits.Length()
}

// HashSecret returns the sha256 hex digest stored in place of a code or token.
func HashSecret(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// MatchSecret compares value against a stored digest in constant time.
func MatchSecret(value, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(HashSecret(value)), []byte(digest)) == 1
}
