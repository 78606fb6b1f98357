package extract

import (
	"bytes"

	"github.com/disintegration/imaging"
)

// maxWidth caps the pixel width sent to the vision endpoint. Receipts stay
// legible well below this, and smaller payloads cut request size a lot.
const maxWidth = 1600

// PrepareImage downscales oversized images and re-encodes them as JPEG.
// Anything that fails to decode is passed through untouched with the
// caller's declared media type; the endpoint gets a best-effort payload.
func PrepareImage(data []byte, mediaType string) ([]byte, string) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return data, mediaType
	}
	if img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return data, mediaType
	}
	return buf.Bytes(), "image/jpeg"
}
