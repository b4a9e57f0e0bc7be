package intake

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestDetectMIME(t *testing.T) {
	tests := []struct {
		name         string
		data         []byte
		wantMIME     string
		wantDetected bool
	}{
		{
			name:         "JPEG",
			data:         []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10},
			wantMIME:     "image/jpeg",
			wantDetected: true,
		},
		{
			name:         "PNG",
			data:         []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00},
			wantMIME:     "image/png",
			wantDetected: true,
		},
		{
			name:         "GIF",
			data:         []byte("GIF89a"),
			wantMIME:     "image/gif",
			wantDetected: true,
		},
		{
			name:         "WebP",
			data:         append([]byte("RIFF\x00\x00\x00\x00WEBP"), make([]byte, 10)...),
			wantMIME:     "image/webp",
			wantDetected: true,
		},
		{
			name:         "RIFF but not WebP",
			data:         append([]byte("RIFF\x00\x00\x00\x00WAVE"), make([]byte, 10)...),
			wantMIME:     "",
			wantDetected: false,
		},
		{
			name:         "PDF disguised as image",
			data:         []byte("%PDF-1.4 malicious content"),
			wantMIME:     "",
			wantDetected: false,
		},
		{
			name:         "empty",
			data:         []byte{},
			wantMIME:     "",
			wantDetected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMIME, gotDetected := DetectMIME(tt.data)
			assert.Equal(t, tt.wantDetected, gotDetected)
			assert.Equal(t, tt.wantMIME, gotMIME)
		})
	}
}

func TestDecodePNG(t *testing.T) {
	data := encodePNG(t, 40, 20)

	img, err := NewDecoder(0, 0).Decode(data, "pill.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, "pill.png", img.Filename)
	assert.Equal(t, 40, img.Width)
	assert.Equal(t, 20, img.Height)
	assert.Equal(t, data, img.Data)
	assert.True(t, strings.HasPrefix(img.DataURL(), "data:image/png;base64,"))
	assert.NotEmpty(t, img.Base64())
}

func TestDecodeRejects(t *testing.T) {
	headerOnlyJPEG := make([]byte, 512)
	copy(headerOnlyJPEG, []byte{0xFF, 0xD8, 0xFF, 0xE0})

	tests := []struct {
		name    string
		data    []byte
		maxSize int64
		wantErr error
	}{
		{name: "empty", data: nil, wantErr: ErrEmptyImage},
		{name: "text", data: []byte("hello, not an image"), wantErr: ErrUnsupportedFormat},
		{name: "header only", data: headerOnlyJPEG, wantErr: ErrCorruptImage},
		{name: "over limit", data: encodePNG(t, 10, 10), maxSize: 8, wantErr: ErrImageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(tt.maxSize, 0).Decode(tt.data, "x")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDecodeDownscalesLargePNG(t *testing.T) {
	img, err := NewDecoder(0, 100).Decode(encodePNG(t, 400, 200), "wide.png")
	require.NoError(t, err)

	assert.Equal(t, "image/png", img.MIMEType)
	assert.Equal(t, 100, img.Width)
	assert.Equal(t, 50, img.Height)

	cfg, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 100, cfg.Width)
}

func TestDecodeDownscaledJPEGStaysJPEG(t *testing.T) {
	img, err := NewDecoder(0, 64).Decode(encodeJPEG(t, 128, 128), "photo.jpg")
	require.NoError(t, err)

	assert.Equal(t, "image/jpeg", img.MIMEType)
	assert.Equal(t, 64, img.Width)
	assert.Equal(t, 64, img.Height)
}

func TestDecodeSmallImageUntouched(t *testing.T) {
	data := encodeJPEG(t, 32, 16)

	img, err := NewDecoder(0, 64).Decode(data, "small.jpg")
	require.NoError(t, err)
	assert.Equal(t, data, img.Data)
}
