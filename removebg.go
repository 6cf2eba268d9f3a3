// Package removebg removes image backgrounds, one file at a time or a whole
// folder per batch.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		removebg "github.com/DennySORA/Remove-Background"
//	)
//
//	func main() {
//		remover, err := removebg.New()
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		// Process every image in a folder into photos/output
//		result, err := remover.ProcessFolder(context.Background(), "photos", "general-v1", nil)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("%d succeeded, %d failed\n", result.Succeeded, result.Failed)
//	}
//
// The package is a thin layer over:
//
//   - Registry (pkg/registry): the catalog of removal methods
//   - Backend (pkg/backend): the removal engines behind one Adapter contract
//   - Resolver (pkg/resolver): validation of user selections
//   - Runner (pkg/runner): bounded-concurrency batch execution
//   - Report (pkg/report): batch summaries and spreadsheet export
//
// Built-in methods:
//
//   - general-v1: border colour model weighted by a saliency map, for ordinary photos
//   - fast-v1: single-pass border key at full resolution
//   - greenscreen-v1: HSV chroma key with spill suppression
//   - vision-v1: general matte restricted to the subject box reported by a vision model
//
// Strength is normalized: 0.1 keeps as much as possible, 1.0 removes
// aggressively. Every output is a PNG with the same size as its input.
package removebg

import (
	"context"
	"fmt"
	"image"

	"github.com/DennySORA/Remove-Background/internal/utils"
	"github.com/DennySORA/Remove-Background/pkg/processing"
	"github.com/DennySORA/Remove-Background/pkg/registry"
	"github.com/DennySORA/Remove-Background/pkg/resolver"
	"github.com/DennySORA/Remove-Background/pkg/runner"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// Version of the background remover
const Version = "1.0.0"

// Remover provides a high-level interface over the registry and the runner
type Remover struct {
	registry  *registry.Registry
	processor *processing.Processor
	runner    *runner.Runner
}

// New creates a Remover with the built-in methods and default settings
func New(opts ...runner.Option) (*Remover, error) {
	reg, err := registry.Default(registry.DefaultOptions())
	if err != nil {
		return nil, err
	}
	return NewWithRegistry(reg, opts...), nil
}

// NewWithRegistry creates a Remover over a custom catalog
func NewWithRegistry(reg *registry.Registry, opts ...runner.Option) *Remover {
	return &Remover{
		registry:  reg,
		processor: processing.NewProcessor(),
		runner:    runner.New(reg, opts...),
	}
}

// Methods returns the available methods in catalog order
func (r *Remover) Methods() []types.MethodDescriptor {
	return r.registry.List()
}

// RemoveBackground cuts out a single decoded image. A nil strength selects
// the method default.
func (r *Remover) RemoveBackground(ctx context.Context, img image.Image, method types.MethodID, strength *float64) (*image.NRGBA, error) {
	desc, s, _, err := resolver.ResolveMethod(r.registry, method, strength, types.ModeGeneralPhoto)
	if err != nil {
		return nil, err
	}
	adapter, err := r.registry.Get(desc.ID)
	if err != nil {
		return nil, err
	}
	if err := adapter.Load(ctx); err != nil {
		return nil, err
	}
	return runner.Remove(ctx, adapter, img, s, runner.DefaultTimeout)
}

// ProcessFile loads inputPath, removes its background and writes a PNG to
// outputPath
func (r *Remover) ProcessFile(ctx context.Context, inputPath, outputPath string, method types.MethodID, strength *float64) error {
	img, err := r.processor.LoadImage(inputPath)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	out, err := r.RemoveBackground(ctx, img, method, strength)
	if err != nil {
		return fmt.Errorf("failed to remove background: %w", err)
	}
	if err := r.processor.SavePNG(out, outputPath); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// ProcessFolder runs every image directly inside folder as one batch and
// writes the results to folder/output
func (r *Remover) ProcessFolder(ctx context.Context, folder string, method types.MethodID, strength *float64) (types.BatchResult, error) {
	job, err := resolver.Resolve(r.registry, resolver.Request{
		Method:       method,
		Strength:     strength,
		SourceFolder: folder,
	})
	if err != nil {
		return types.BatchResult{}, err
	}
	paths, err := utils.ListImageFiles(job.SourceFolder)
	if err != nil {
		return types.BatchResult{}, fmt.Errorf("%w: %v", types.ErrInvalidPath, err)
	}
	return r.runner.Run(ctx, job, paths)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
