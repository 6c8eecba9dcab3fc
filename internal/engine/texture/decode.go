package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
)

// ErrUnknownImageFormat is returned for file extensions with no decoder.
var ErrUnknownImageFormat = errors.New("unknown image format")

// DecodeImage decodes a TGA, BMP or PNG image selected by the file extension.
func DecodeImage(name string, data []byte) (*image.RGBA, error) {
	var (
		img image.Image
		err error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".tga":
		return DecodeTGA(data)
	case ".bmp":
		img, err = bmp.Decode(bytes.NewReader(data))
	case ".png":
		img, err = png.Decode(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownImageFormat, name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return ImageToRGBA(img), nil
}

// EncodePNG encodes raw RGBA pixels as PNG.
func EncodePNG(pix []byte, width, height int) ([]byte, error) {
	if len(pix) != width*height*4 {
		return nil, fmt.Errorf("encode png: %d bytes for %dx%d", len(pix), width, height)
	}
	img := &image.RGBA{Pix: pix, Stride: width * 4, Rect: image.Rect(0, 0, width, height)}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Solid returns width x height pixels of one color.
func Solid(width, height int, r, g, b, a uint8) []byte {
	pix := make([]byte, width*height*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, a
	}
	return pix
}
