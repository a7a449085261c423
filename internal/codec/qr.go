package codec

import qrcode "github.com/skip2/go-qrcode"

// qrSize is the pixel width of the generated square image.
const qrSize = 256

// QRPNG renders an encoded payload as a PNG QR image suitable for an email
// attachment.
func QRPNG(encoded string) ([]byte, error) {
	return qrcode.Encode(encoded, qrcode.Medium, qrSize)
}
