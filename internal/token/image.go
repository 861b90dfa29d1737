package token

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultImageSize matches the printed badge size in pixels.
const DefaultImageSize = 300

// PNG renders raw token text as a QR code image.
func PNG(raw string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(raw, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr code: %w", err)
	}
	return png, nil
}
