package payment

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

const qrSize = 256

// QRDataURI renders a PIX copy-paste code as a PNG data URI.
func QRDataURI(brCode string) (string, error) {
	if brCode == "" {
		return "", fmt.Errorf("qr: empty pix code")
	}
	png, err := qrcode.Encode(brCode, qrcode.Medium, qrSize)
	if err != nil {
		return "", fmt.Errorf("qr: encode: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
