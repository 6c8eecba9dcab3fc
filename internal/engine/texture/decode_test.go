package texture

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"golang.org/x/image/bmp"
)

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for i := range img.Pix {
		img.Pix[i] = 255
	}
	img.SetRGBA(3, 1, color.RGBA{10, 20, 30, 255})
	return img
}

func TestDecodeImage(t *testing.T) {
	var pngBuf, bmpBuf bytes.Buffer
	if err := png.Encode(&pngBuf, testImage()); err != nil {
		t.Fatal(err)
	}
	if err := bmp.Encode(&bmpBuf, testImage()); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"brush.png", pngBuf.Bytes()},
		{"BRUSH.BMP", bmpBuf.Bytes()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := DecodeImage(tt.name, tt.data)
			if err != nil {
				t.Fatalf("DecodeImage failed: %v", err)
			}
			if img.Rect.Dx() != 4 || img.Rect.Dy() != 2 {
				t.Fatalf("size = %v", img.Rect)
			}
			if got := img.RGBAAt(3, 1); got != (color.RGBA{10, 20, 30, 255}) {
				t.Errorf("pixel = %v", got)
			}
		})
	}

	if _, err := DecodeImage("brush.gif", nil); !errors.Is(err, ErrUnknownImageFormat) {
		t.Errorf("gif error = %v, want ErrUnknownImageFormat", err)
	}
}

func TestEncodePNG(t *testing.T) {
	pix := Solid(3, 3, 1, 2, 3, 255)
	data, err := EncodePNG(pix, 3, 3)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	img, err := DecodeImage("mask.png", data)
	if err != nil {
		t.Fatalf("DecodeImage failed: %v", err)
	}
	if !bytes.Equal(img.Pix, pix) {
		t.Error("PNG round trip changed pixels")
	}
	if _, err := EncodePNG(pix, 4, 4); err == nil {
		t.Error("expected size error")
	}
}
