package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/chai2010/webp"

	"github.com/DennySORA/Remove-Background/pkg/types"
)

// createTestImage creates a half-transparent gradient
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			a := uint8(255)
			if x < width/2 {
				a = 0
			}
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 255 / width), uint8(y * 255 / height), 128, a})
		}
	}
	return img
}

func TestNewProcessor(t *testing.T) {
	if NewProcessor() == nil {
		t.Error("NewProcessor() returned nil")
	}
}

func TestSavePNGKeepsAlpha(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "nested", "out.png")

	if err := p.SavePNG(createTestImage(20, 10), path); err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 20 || img.Bounds().Dy() != 10 {
		t.Errorf("unexpected size %v", img.Bounds())
	}
	if _, _, _, a := img.At(2, 2).RGBA(); a != 0 {
		t.Errorf("expected transparent pixel, got alpha %d", a)
	}
	if _, _, _, a := img.At(15, 2).RGBA(); a != 0xffff {
		t.Errorf("expected opaque pixel, got alpha %d", a)
	}

	// no temporary files are left behind
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only out.png in output folder, found %d entries", len(entries))
	}
}

func TestSavePNGOverwrites(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "out.png")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.SavePNG(createTestImage(4, 4), path); err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if bytes.Equal(data, []byte("old")) {
		t.Error("destination was not replaced")
	}
}

func TestSavePNGRejectsDirectory(t *testing.T) {
	p := NewProcessor()
	path := filepath.Join(t.TempDir(), "out.png")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatal(err)
	}
	err := p.SavePNG(createTestImage(4, 4), path)
	if !errors.Is(err, types.ErrOutput) {
		t.Errorf("expected ErrOutput, got %v", err)
	}
}

func TestSavePNGUncreatableFolder(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := NewProcessor().SavePNG(createTestImage(4, 4), filepath.Join(blocker, "out.png"))
	if !errors.Is(err, types.ErrOutput) {
		t.Errorf("expected ErrOutput, got %v", err)
	}
}

func TestLoadImageFormats(t *testing.T) {
	dir := t.TempDir()
	src := createTestImage(16, 12)

	var pngBuf, jpgBuf bytes.Buffer
	if err := png.Encode(&pngBuf, src); err != nil {
		t.Fatal(err)
	}
	if err := jpeg.Encode(&jpgBuf, src, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	webpData, err := webp.EncodeRGBA(src, 90)
	if err != nil {
		t.Fatal(err)
	}

	files := map[string][]byte{
		"a.png":  pngBuf.Bytes(),
		"b.JPG":  jpgBuf.Bytes(),
		"c.webp": webpData,
	}

	p := NewProcessor()
	for name, data := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}
		img, err := p.LoadImage(path)
		if err != nil {
			t.Errorf("%s: LoadImage failed: %v", name, err)
			continue
		}
		if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 12 {
			t.Errorf("%s: unexpected size %v", name, img.Bounds())
		}
	}
}

func TestLoadImageCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jpg")
	if err := os.WriteFile(path, []byte("definitely not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewProcessor().LoadImage(path)
	if !errors.Is(err, types.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
	if got := types.Reason(err); got != "DecodeError" {
		t.Errorf("expected reason DecodeError, got %q", got)
	}
}

func TestLoadImageMissing(t *testing.T) {
	_, err := NewProcessor().LoadImage(filepath.Join(t.TempDir(), "missing.png"))
	if !errors.Is(err, types.ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestPrepareImageForModel(t *testing.T) {
	p := NewProcessor()
	b64, err := p.PrepareImageForModel(createTestImage(400, 200), "jpg", 100, 85)
	if err != nil {
		t.Fatalf("PrepareImageForModel failed: %v", err)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("payload is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 50 {
		t.Errorf("expected 100x50, got %v", img.Bounds())
	}
}
