package export

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/versecast/backend/internal/config"
)

func testImage(c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func decodeFile(t *testing.T, path string) image.Image {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding %s: %v", path, err)
	}
	return img
}

func TestPublishWritesAllThreeVariants(t *testing.T) {
	dir := t.TempDir()
	p := NewPublisher(dir, config.AlphaPremultiplied, nil, nil)

	straight := testImage(color.NRGBA{200, 100, 50, 128})
	premult := testImage(color.NRGBA{100, 50, 25, 128})

	if err := p.Publish(context.Background(), "demo", straight, premult); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, name := range []string{"demo.straight.png", "demo.premultiplied.png", "demo.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing artifact %s: %v", name, err)
		}
	}

	// The default file follows the configured premultiplied mode.
	img := decodeFile(t, filepath.Join(dir, "demo.png"))
	r, g, b, _ := img.At(0, 0).RGBA()
	pr, pg, pb, _ := decodeFile(t, filepath.Join(dir, "demo.premultiplied.png")).At(0, 0).RGBA()
	if r != pr || g != pg || b != pb {
		t.Error("default artifact does not match the premultiplied variant")
	}
}

func TestPublishDefaultStraight(t *testing.T) {
	dir := t.TempDir()
	p := NewPublisher(dir, config.AlphaStraight, nil, nil)

	straight := testImage(color.NRGBA{200, 100, 50, 128})
	premult := testImage(color.NRGBA{100, 50, 25, 128})
	if err := p.Publish(context.Background(), "s", straight, premult); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	def, _ := os.ReadFile(filepath.Join(dir, "s.png"))
	str, _ := os.ReadFile(filepath.Join(dir, "s.straight.png"))
	if !bytes.Equal(def, str) {
		t.Error("default artifact should match the straight variant")
	}
}

func TestPublishLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	p := NewPublisher(dir, config.AlphaPremultiplied, nil, nil)

	img := testImage(color.NRGBA{0, 0, 0, 255})
	if err := p.Publish(context.Background(), "x", img, img); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestPublishPlaceholder(t *testing.T) {
	dir := t.TempDir()
	p := NewPublisher(dir, config.AlphaPremultiplied, nil, nil)

	if err := p.PublishPlaceholder(context.Background(), "blank", 32, 18); err != nil {
		t.Fatalf("PublishPlaceholder: %v", err)
	}

	img := decodeFile(t, filepath.Join(dir, "blank.png"))
	if got := img.Bounds(); got.Dx() != 32 || got.Dy() != 18 {
		t.Errorf("placeholder dimensions = %dx%d, want 32x18", got.Dx(), got.Dy())
	}
	_, _, _, a := img.At(10, 10).RGBA()
	if a != 0 {
		t.Errorf("placeholder pixel alpha = %d, want 0", a)
	}
}

func TestSafeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"demo", "demo"},
		{"sunday-morning", "sunday-morning"},
		{"../../etc/passwd", "_.._etc_passwd"}, // leading dots trimmed

		{"a/b\\c", "a_b_c"},
		{"", "default"},
		{"...", "default"},
		{"main hall", "main_hall"},
	}
	for _, tt := range tests {
		if got := SafeName(tt.in); got != tt.want {
			t.Errorf("SafeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
