// Package intake turns an uploaded or captured photo into an image payload
// that can be previewed and sent to the identification model.
package intake

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"net/http"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// DefaultMaxBytes matches the upload limit of the web form.
const DefaultMaxBytes = 20 * 1024 * 1024

var (
	ErrEmptyImage        = errors.New("image is empty")
	ErrImageTooLarge     = errors.New("image is too large")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrCorruptImage      = errors.New("image could not be decoded")
)

type Image struct {
	Data     []byte
	MIMEType string
	Filename string
	Width    int
	Height   int
}

// Base64 returns the payload sent to the AI backend.
func (img *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(img.Data)
}

// DataURL returns an inline preview URL suitable for an <img> src.
func (img *Image) DataURL() string {
	return "data:" + img.MIMEType + ";base64," + img.Base64()
}

// allowedImageTypes is the set of MIME types accepted for uploads.
// net/http.DetectContentType recognizes JPEG, PNG and GIF. It has no WebP
// signature, so isWebP checks for that separately.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}

// DetectMIME returns the detected MIME type and true if the data is an
// accepted image format, or ("", false) otherwise.
func DetectMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	mime := http.DetectContentType(data)
	if allowedImageTypes[mime] {
		return mime, true
	}
	return "", false
}

// Decoder validates raw uploads and optionally downscales them.
type Decoder struct {
	MaxBytes     int64
	MaxDimension int
}

func NewDecoder(maxBytes int64, maxDimension int) *Decoder {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Decoder{MaxBytes: maxBytes, MaxDimension: maxDimension}
}

// Decode checks that data is a supported, decodable image and returns it
// ready for preview and identification.
func (d *Decoder) Decode(data []byte, filename string) (*Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if d.MaxBytes > 0 && int64(len(data)) > d.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrImageTooLarge, len(data), d.MaxBytes)
	}

	mimeType, ok := DetectMIME(data)
	if !ok {
		return nil, ErrUnsupportedFormat
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptImage, err)
	}

	img := &Image{
		Data:     data,
		MIMEType: mimeType,
		Filename: filename,
		Width:    cfg.Width,
		Height:   cfg.Height,
	}
	return d.normalize(img)
}
