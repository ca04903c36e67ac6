package export

import (
	"image"
	"image/color"
	"testing"
)

func TestPremultiplyOpaquePixelsUnchanged(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	colors := []color.NRGBA{
		{200, 100, 50, 255},
		{0, 0, 0, 255},
		{255, 255, 255, 255},
		{17, 93, 201, 255},
	}
	for i, c := range colors {
		src.SetNRGBA(i%2, i/2, c)
	}

	dst := Premultiply(src)
	for i, want := range colors {
		if got := dst.NRGBAAt(i%2, i/2); got != want {
			t.Errorf("pixel %d: %v, want %v", i, got, want)
		}
	}
}

func TestPremultiplyPartialAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{200, 100, 50, 128})

	got := Premultiply(src).NRGBAAt(0, 0)
	want := color.NRGBA{100, 50, 25, 128}
	if got != want {
		t.Errorf("Premultiply(200,100,50,128) = %v, want %v", got, want)
	}
}

func TestPremultiplyTransparentBecomesBlack(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{250, 120, 80, 0})

	got := Premultiply(src).NRGBAAt(0, 0)
	want := color.NRGBA{0, 0, 0, 0}
	if got != want {
		t.Errorf("fully transparent pixel = %v, want premultiplied black %v", got, want)
	}
}

func TestPremultiplyRounding(t *testing.T) {
	tests := []struct {
		c, a, want uint8
	}{
		{255, 128, 128}, // 255*128/255 = 128 exactly
		{1, 128, 1},     // 0.502 rounds up
		{1, 127, 0},     // 0.498 rounds down
		{255, 1, 1},
		{128, 255, 128},
	}
	for _, tt := range tests {
		if got := scale(tt.c, tt.a); got != tt.want {
			t.Errorf("scale(%d, %d) = %d, want %d", tt.c, tt.a, got, tt.want)
		}
	}
}

func TestPremultiplyDoesNotMutateSource(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{200, 100, 50, 128})

	Premultiply(src)

	if got := src.NRGBAAt(0, 0); got != (color.NRGBA{200, 100, 50, 128}) {
		t.Errorf("source mutated to %v", got)
	}
}

func TestToNRGBAPassthrough(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 3))
	if toNRGBA(src) != src {
		t.Error("NRGBA input should pass through without copying")
	}
}

func TestToNRGBAConverts(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 2, 2))
	src.Set(1, 1, color.RGBA{10, 20, 30, 255})

	dst := toNRGBA(src)
	if got := dst.NRGBAAt(1, 1); got != (color.NRGBA{10, 20, 30, 255}) {
		t.Errorf("converted pixel = %v", got)
	}
}
