package resolver

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DennySORA/Remove-Background/pkg/types"
)

type fakeCatalog map[types.MethodID]types.MethodDescriptor

func (f fakeCatalog) Descriptor(id types.MethodID) (types.MethodDescriptor, error) {
	d, ok := f[id]
	if !ok {
		return types.MethodDescriptor{}, fmt.Errorf("%w: %q", types.ErrUnknownMethod, id)
	}
	return d, nil
}

func testCatalog(greenScreen bool) fakeCatalog {
	return fakeCatalog{
		"general-v1": {
			ID: "general-v1", DefaultStrength: 0.5, MinStrength: 0.1, MaxStrength: 1.0,
		},
		"greenscreen-v1": {
			ID: "greenscreen-v1", DefaultStrength: 0.7, MinStrength: 0.1, MaxStrength: 1.0,
			SupportsGreenScreen: greenScreen,
		},
	}
}

func TestResolveDefaults(t *testing.T) {
	src := t.TempDir()

	cfg, err := Resolve(testCatalog(true), Request{Method: "general-v1", SourceFolder: src})
	require.NoError(t, err)

	assert.Equal(t, types.MethodID("general-v1"), cfg.Method)
	assert.Equal(t, 0.5, cfg.Strength)
	assert.Equal(t, types.ModeGeneralPhoto, cfg.Mode)
	assert.Equal(t, src, cfg.SourceFolder)
	assert.Equal(t, filepath.Join(src, "output"), cfg.OutputFolder)

	_, err = os.Stat(cfg.OutputFolder)
	assert.True(t, os.IsNotExist(err), "resolve must not create the output folder")
}

func TestResolveExplicitValues(t *testing.T) {
	src := t.TempDir()
	out := filepath.Join(t.TempDir(), "nested", "out")

	cfg, err := Resolve(testCatalog(true), Request{
		Method:       "greenscreen-v1",
		Strength:     Strength(0.9),
		Mode:         types.ModeGreenScreen,
		SourceFolder: src,
		OutputFolder: out,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.9, cfg.Strength)
	assert.Equal(t, types.ModeGreenScreen, cfg.Mode)
	assert.Equal(t, out, cfg.OutputFolder)
}

func TestResolveInvalidStrength(t *testing.T) {
	src := t.TempDir()
	for _, s := range []float64{-1, 0, 0.05, 1.01, 7, math.NaN(), math.Inf(1)} {
		_, err := Resolve(testCatalog(true), Request{Method: "general-v1", Strength: Strength(s), SourceFolder: src})
		assert.ErrorIs(t, err, types.ErrInvalidStrength, "strength %v", s)
	}
}

func TestResolveBoundsAreInclusive(t *testing.T) {
	src := t.TempDir()
	for _, s := range []float64{0.1, 1.0} {
		_, err := Resolve(testCatalog(true), Request{Method: "general-v1", Strength: Strength(s), SourceFolder: src})
		assert.NoError(t, err, "strength %v", s)
	}
}

func TestResolveIncompatibleMode(t *testing.T) {
	src := t.TempDir()

	_, err := Resolve(testCatalog(false), Request{Method: "greenscreen-v1", Mode: types.ModeGreenScreen, SourceFolder: src})
	assert.ErrorIs(t, err, types.ErrIncompatibleMode)

	_, err = Resolve(testCatalog(true), Request{Method: "general-v1", Mode: types.ModeGreenScreen, SourceFolder: src})
	assert.ErrorIs(t, err, types.ErrIncompatibleMode)

	_, err = Resolve(testCatalog(true), Request{Method: "general-v1", Mode: "infrared", SourceFolder: src})
	assert.ErrorIs(t, err, types.ErrIncompatibleMode)
}

func TestResolveUnknownMethod(t *testing.T) {
	_, err := Resolve(testCatalog(true), Request{Method: "magic-v9", SourceFolder: t.TempDir()})
	assert.ErrorIs(t, err, types.ErrUnknownMethod)
}

func TestResolveInvalidPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	tests := []struct {
		name string
		req  Request
	}{
		{"empty source", Request{Method: "general-v1"}},
		{"missing source", Request{Method: "general-v1", SourceFolder: filepath.Join(dir, "missing")}},
		{"source is a file", Request{Method: "general-v1", SourceFolder: file}},
		{"output under a file", Request{Method: "general-v1", SourceFolder: dir, OutputFolder: filepath.Join(file, "out")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(testCatalog(true), tt.req)
			assert.ErrorIs(t, err, types.ErrInvalidPath)
		})
	}
}

func TestResolveMethodSkipsFilesystem(t *testing.T) {
	desc, s, mode, err := ResolveMethod(testCatalog(true), "greenscreen-v1", nil, types.ModeGreenScreen)
	require.NoError(t, err)
	assert.Equal(t, types.MethodID("greenscreen-v1"), desc.ID)
	assert.Equal(t, 0.7, s)
	assert.Equal(t, types.ModeGreenScreen, mode)
}
