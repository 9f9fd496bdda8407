package totp

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

// QRSize is the rendered PNG edge length in pixels.
const QRSize = 256

// QRPNG encodes uri as a PNG QR code.
func QRPNG(uri string) ([]byte, error) {
	return qrcode.Encode(uri, qrcode.Low, QRSize)
}

// RenderQR encodes uri as a QR code PNG data URL.
func RenderQR(uri string) (string, error) {
	png, err := QRPNG(uri)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
