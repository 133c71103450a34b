package auth

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// MagicLinkQR renders link as a QR code made of block characters, for
// scanning a sign-in link off the terminal with a phone.
func MagicLinkQR(link string) (string, error) {
	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to create QR code: %w", err)
	}
	return qr.ToSmallString(false), nil
}

// MagicLinkPNG renders link as a PNG data URL suitable for an HTML email.
func MagicLinkPNG(link string) (string, error) {
	png, err := qrcode.Encode(link, qrcode.Medium, 200)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
