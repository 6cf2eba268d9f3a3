package removebg

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/DennySORA/Remove-Background/pkg/backend"
	"github.com/DennySORA/Remove-Background/pkg/registry"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// createTestImage creates a light backdrop with a dark subject in the centre
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.SetNRGBA(x, y, color.NRGBA{40, 60, 150, 255})
			} else {
				img.SetNRGBA(x, y, color.NRGBA{235, 235, 235, 255})
			}
		}
	}
	return img
}

func newTestRemover() *Remover {
	return NewWithRegistry(registry.New(backend.NewGeneral(), backend.NewFastKey()))
}

func TestNew(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if len(r.Methods()) != 4 {
		t.Errorf("expected 4 methods, got %d", len(r.Methods()))
	}
}

func TestRemoveBackground(t *testing.T) {
	r := newTestRemover()
	img := createTestImage(90, 60)

	out, err := r.RemoveBackground(context.Background(), img, backend.FastID, nil)
	if err != nil {
		t.Fatalf("RemoveBackground failed: %v", err)
	}
	if out.Bounds() != img.Bounds() {
		t.Errorf("bounds changed: %v -> %v", img.Bounds(), out.Bounds())
	}
	if a := out.NRGBAAt(0, 0).A; a != 0 {
		t.Errorf("corner alpha = %d, want 0", a)
	}
	if a := out.NRGBAAt(45, 30).A; a != 255 {
		t.Errorf("centre alpha = %d, want 255", a)
	}
}

func TestRemoveBackgroundValidates(t *testing.T) {
	r := newTestRemover()
	img := createTestImage(20, 20)
	bad := 3.0

	if _, err := r.RemoveBackground(context.Background(), img, "magic-v9", nil); err == nil {
		t.Error("expected an error for an unknown method")
	}
	if _, err := r.RemoveBackground(context.Background(), img, backend.GeneralID, &bad); err == nil {
		t.Error("expected an error for an out-of-range strength")
	}
}

func TestProcessFolder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png"} {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if err := png.Encode(f, createTestImage(60, 40)); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}
	if err := os.WriteFile(filepath.Join(dir, "c.jpg"), []byte("broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := newTestRemover().ProcessFolder(context.Background(), dir, backend.GeneralID, nil)
	if err != nil {
		t.Fatalf("ProcessFolder failed: %v", err)
	}
	if result.Total != 3 || result.Succeeded != 2 || result.Failed != 1 {
		t.Errorf("unexpected counts: %+v", result)
	}
	if len(result.Failures) != 1 || result.Failures[0].Reason != types.ErrDecode.Error() {
		t.Errorf("unexpected failures: %+v", result.Failures)
	}
	for _, name := range []string{"a.png", "b.png"} {
		if _, err := os.Stat(filepath.Join(dir, "output", name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	f, err := os.Create(in)
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(f, createTestImage(30, 30)); err != nil {
		t.Fatal(err)
	}
	f.Close()

	out := filepath.Join(dir, "out", "cut.png")
	if err := newTestRemover().ProcessFile(context.Background(), in, out, backend.FastID, nil); err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("GetVersion() = %q, want %q", GetVersion(), Version)
	}
}
