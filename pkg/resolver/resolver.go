// Package resolver turns user selections into a validated JobConfiguration.
//
// It is the single validation gate of the system: once a JobConfiguration has
// been produced, no downstream component checks these fields again.
package resolver

import (
	"fmt"
	"path/filepath"

	"github.com/DennySORA/Remove-Background/internal/utils"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// Catalog is the part of the registry the resolver needs
type Catalog interface {
	Descriptor(id types.MethodID) (types.MethodDescriptor, error)
}

// Request holds the raw selections. A nil Strength selects the method default;
// an empty OutputFolder selects <SourceFolder>/output.
type Request struct {
	Method       types.MethodID
	Strength     *float64
	Mode         types.Mode
	SourceFolder string
	OutputFolder string
}

// Strength is a helper for filling Request.Strength from a literal
func Strength(v float64) *float64 { return &v }

// Resolve validates req and builds the immutable job configuration.
// Checks run in order: method, strength, mode, source folder, output folder.
func Resolve(catalog Catalog, req Request) (types.JobConfiguration, error) {
	desc, strength, mode, err := ResolveMethod(catalog, req.Method, req.Strength, req.Mode)
	if err != nil {
		return types.JobConfiguration{}, err
	}

	source, err := filepath.Abs(req.SourceFolder)
	if err != nil || req.SourceFolder == "" {
		return types.JobConfiguration{}, fmt.Errorf("%w: source folder %q", types.ErrInvalidPath, req.SourceFolder)
	}
	if err := utils.CheckReadableDir(source); err != nil {
		return types.JobConfiguration{}, fmt.Errorf("%w: source folder: %v", types.ErrInvalidPath, err)
	}

	output := req.OutputFolder
	if output == "" {
		output = utils.DefaultOutputDir(source)
	}
	output, err = filepath.Abs(output)
	if err != nil {
		return types.JobConfiguration{}, fmt.Errorf("%w: output folder %q", types.ErrInvalidPath, req.OutputFolder)
	}
	if err := utils.CheckWritableDir(output); err != nil {
		return types.JobConfiguration{}, fmt.Errorf("%w: output folder: %v", types.ErrInvalidPath, err)
	}

	return types.JobConfiguration{
		SourceFolder: source,
		OutputFolder: output,
		Method:       desc.ID,
		Strength:     strength,
		Mode:         mode,
	}, nil
}

// ResolveMethod validates the method, strength and mode without touching the
// filesystem. The HTTP surface uses it for single-image requests.
func ResolveMethod(catalog Catalog, method types.MethodID, strength *float64, mode types.Mode) (types.MethodDescriptor, float64, types.Mode, error) {
	desc, err := catalog.Descriptor(method)
	if err != nil {
		return types.MethodDescriptor{}, 0, "", err
	}

	s := desc.DefaultStrength
	if strength != nil {
		s = *strength
	}
	if !desc.InBounds(s) {
		return types.MethodDescriptor{}, 0, "", fmt.Errorf("%w: %v is outside [%.2f, %.2f] for %s",
			types.ErrInvalidStrength, s, desc.MinStrength, desc.MaxStrength, desc.ID)
	}

	m, ok := types.ParseMode(string(mode))
	if !ok {
		return types.MethodDescriptor{}, 0, "", fmt.Errorf("%w: unknown mode %q", types.ErrIncompatibleMode, mode)
	}
	if m == types.ModeGreenScreen && !desc.SupportsGreenScreen {
		return types.MethodDescriptor{}, 0, "", fmt.Errorf("%w: %s does not support green screen removal",
			types.ErrIncompatibleMode, desc.ID)
	}
	return desc, s, m, nil
}
