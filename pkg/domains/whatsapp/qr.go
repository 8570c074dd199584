package whatsapp

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// qrTTLSeconds is how long a persisted QR payload stays presentable.
// The transport rotates codes on its own; this bounds what pollers see.
const qrTTLSeconds = 60

// encodeQRImage renders the pairing payload as a PNG data URI suitable
// for direct embedding in a client <img> tag.
func encodeQRImage(code string) (string, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("failed to render QR image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
