package intake

import (
	"bytes"
	"fmt"

	"github.com/disintegration/imaging"
)

// normalize shrinks img so its longest side is at most MaxDimension. PNG
// input stays PNG; every other format is re-encoded as JPEG.
func (d *Decoder) normalize(img *Image) (*Image, error) {
	if d.MaxDimension <= 0 || (img.Width <= d.MaxDimension && img.Height <= d.MaxDimension) {
		return img, nil
	}

	src, err := imaging.Decode(bytes.NewReader(img.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}
	resized := imaging.Fit(src, d.MaxDimension, d.MaxDimension, imaging.Lanczos)

	format, mimeType := imaging.JPEG, "image/jpeg"
	if img.MIMEType == "image/png" {
		format, mimeType = imaging.PNG, "image/png"
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, format, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	bounds := resized.Bounds()
	return &Image{
		Data:     buf.Bytes(),
		MIMEType: mimeType,
		Filename: img.Filename,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}
