// Package registry is the catalog of background-removal methods.
//
// A Registry is filled once at startup and is read-only afterwards, so it is
// safe to share between goroutines without locking.
package registry

import (
	"fmt"

	"github.com/DennySORA/Remove-Background/pkg/backend"
	"github.com/DennySORA/Remove-Background/pkg/client"
	"github.com/DennySORA/Remove-Background/pkg/llamacpp"
	"github.com/DennySORA/Remove-Background/pkg/ollama"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// Registry maps method identifiers to adapters in registration order
type Registry struct {
	order    []types.MethodID
	adapters map[types.MethodID]backend.Adapter
}

// New creates a registry from the given adapters. Registering the same
// identifier twice is a programming error and panics. Adapters that are not
// reentrant are stored behind backend.Exclusive, so every caller of Get shares
// one call slot per method.
func New(adapters ...backend.Adapter) *Registry {
	r := &Registry{adapters: make(map[types.MethodID]backend.Adapter, len(adapters))}
	for _, a := range adapters {
		id := a.Descriptor().ID
		if _, dup := r.adapters[id]; dup {
			panic(fmt.Sprintf("registry: duplicate method %q", id))
		}
		r.order = append(r.order, id)
		r.adapters[id] = backend.Exclusive(a)
	}
	return r
}

// List returns the descriptors in registration order
func (r *Registry) List() []types.MethodDescriptor {
	out := make([]types.MethodDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.adapters[id].Descriptor())
	}
	return out
}

// Get returns the adapter registered under id
func (r *Registry) Get(id types.MethodID) (backend.Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownMethod, id)
	}
	return a, nil
}

// Descriptor returns the catalog entry for id
func (r *Registry) Descriptor(id types.MethodID) (types.MethodDescriptor, error) {
	a, err := r.Get(id)
	if err != nil {
		return types.MethodDescriptor{}, err
	}
	return a.Descriptor(), nil
}

// Len returns the number of registered methods
func (r *Registry) Len() int { return len(r.order) }

// Vision transports
const (
	VisionOllama   = "ollama"
	VisionLlamaCpp = "llamacpp"
)

// Options configures the built-in adapters
type Options struct {
	GreenScreenVariant backend.Variant
	GreenScreenKey     backend.KeyConfig
	VisionBackend      string
	VisionURL          string
	VisionModel        string
	VisionSendSize     int
}

// DefaultOptions returns the options used when no configuration is given
func DefaultOptions() Options {
	return Options{
		GreenScreenVariant: backend.VariantHybrid,
		GreenScreenKey:     backend.DefaultKeyConfig(),
		VisionBackend:      VisionOllama,
		VisionModel:        backend.DefaultVisionModel,
		VisionSendSize:     backend.DefaultSendSize,
	}
}

// Default builds the built-in catalog: general, fast, green screen, vision
func Default(opts Options) (*Registry, error) {
	visionClient, err := NewVisionClient(opts.VisionBackend, opts.VisionURL)
	if err != nil {
		return nil, err
	}
	return New(
		backend.NewGeneral(),
		backend.NewFastKey(),
		backend.NewGreenScreenWithConfig(opts.GreenScreenVariant, opts.GreenScreenKey),
		backend.NewVision(visionClient, opts.VisionModel, opts.VisionSendSize),
	), nil
}

// NewVisionClient creates the transport for the vision-guided method
func NewVisionClient(kind, url string) (client.VisionClient, error) {
	switch kind {
	case VisionOllama, "":
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return c, nil
	case VisionLlamaCpp:
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown vision backend %q (want %s or %s)", kind, VisionOllama, VisionLlamaCpp)
}
