// Package texture decodes brush and tile images and packs them into the
// texture arrays used by the terrain mask and blend passes.
package texture

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// TGA image type constants.
const (
	TGATypeUncompressed = 2  // Uncompressed true-color
	TGATypeRLE          = 10 // RLE compressed true-color
)

// TGA errors.
var (
	ErrTGATruncated   = errors.New("TGA data truncated")
	ErrTGAUnsupported = errors.New("unsupported TGA")
)

// tgaReader walks TGA pixel data in file order.
type tgaReader struct {
	img         *image.RGBA
	width       int
	height      int
	bpp         int
	topToBottom bool
}

// pixel decodes one BGR(A) pixel at data[0:bpp].
func (r *tgaReader) pixel(data []byte) color.RGBA {
	c := color.RGBA{R: data[2], G: data[1], B: data[0], A: 255}
	if r.bpp == 4 {
		c.A = data[3]
	}
	return c
}

// put stores the i-th pixel in file order, honoring the origin flag.
func (r *tgaReader) put(i int, c color.RGBA) {
	x := i % r.width
	y := i / r.width
	if !r.topToBottom {
		y = r.height - 1 - y
	}
	r.img.SetRGBA(x, y, c)
}

// DecodeTGA decodes uncompressed (type 2) and RLE (type 10) true-color TGA
// images of 24 or 32 bits per pixel.
func DecodeTGA(data []byte) (*image.RGBA, error) {
	if len(data) < 18 {
		return nil, fmt.Errorf("%w: header", ErrTGATruncated)
	}

	idLength := int(data[0])
	colorMapType := data[1]
	imageType := data[2]
	width := int(data[12]) | int(data[13])<<8
	height := int(data[14]) | int(data[15])<<8
	bits := int(data[16])
	descriptor := data[17]

	if colorMapType != 0 {
		return nil, fmt.Errorf("%w: color-mapped", ErrTGAUnsupported)
	}
	if imageType != TGATypeUncompressed && imageType != TGATypeRLE {
		return nil, fmt.Errorf("%w: type %d", ErrTGAUnsupported, imageType)
	}
	if bits != 24 && bits != 32 {
		return nil, fmt.Errorf("%w: %d bits per pixel", ErrTGAUnsupported, bits)
	}

	offset := 18 + idLength
	if offset > len(data) {
		return nil, fmt.Errorf("%w: image id", ErrTGATruncated)
	}

	r := &tgaReader{
		img:         image.NewRGBA(image.Rect(0, 0, width, height)),
		width:       width,
		height:      height,
		bpp:         bits / 8,
		topToBottom: descriptor&0x20 != 0,
	}
	pix := data[offset:]

	if imageType == TGATypeUncompressed {
		if len(pix) < width*height*r.bpp {
			return nil, fmt.Errorf("%w: pixel data", ErrTGATruncated)
		}
		for i := 0; i < width*height; i++ {
			r.put(i, r.pixel(pix[i*r.bpp:]))
		}
		return r.img, nil
	}

	if err := r.decodeRLE(pix); err != nil {
		return nil, err
	}
	return r.img, nil
}

func (r *tgaReader) decodeRLE(pix []byte) error {
	total := r.width * r.height
	i := 0
	pos := 0

	for i < total {
		if pos >= len(pix) {
			return fmt.Errorf("%w: RLE packet %d", ErrTGATruncated, i)
		}
		header := pix[pos]
		pos++
		count := int(header&0x7F) + 1

		if header&0x80 != 0 {
			if pos+r.bpp > len(pix) {
				return fmt.Errorf("%w: RLE run", ErrTGATruncated)
			}
			c := r.pixel(pix[pos:])
			pos += r.bpp
			for n := 0; n < count && i < total; n++ {
				r.put(i, c)
				i++
			}
			continue
		}

		for n := 0; n < count && i < total; n++ {
			if pos+r.bpp > len(pix) {
				return fmt.Errorf("%w: raw packet", ErrTGATruncated)
			}
			r.put(i, r.pixel(pix[pos:]))
			pos += r.bpp
			i++
		}
	}
	return nil
}

// ImageToRGBA converts any image.Image to *image.RGBA anchored at (0, 0).
func ImageToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			rgba.Set(x-bounds.Min.X, y-bounds.Min.Y, img.At(x, y))
		}
	}
	return rgba
}
