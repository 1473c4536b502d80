// Package adapter defines the capability interface export formats implement
// and the registry the export pipeline resolves them from. The core never
// branches on a concrete adapter; it only calls this interface.
package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"curator/internal/services"
)

// Record is the immutable per-sample input handed to an adapter. It is built
// from an export job's snapshot, never from the live ledger.
type Record struct {
	SampleID string
	MediaRef string
	Tags     []string
	Fields   map[string]any
}

// Artifact describes one encoded output file.
type Artifact struct {
	SampleID string
	Path     string
	Bytes    int64
}

// Manifest is the adapter-level result of finalizing an export.
type Manifest struct {
	Format        string
	IndexPath     string
	ArtifactCount int
}

// EncodeOptions carries per-call context for Encode.
type EncodeOptions struct {
	// OutputDir is the directory the artifact must be written under.
	OutputDir string
	// Heartbeat, when non-nil, must be called periodically during long
	// encodes so the runner's watchdog can distinguish slow progress from
	// a stall.
	Heartbeat func()
}

// Tick invokes the heartbeat callback when one is set.
func (o EncodeOptions) Tick() {
	if o.Heartbeat != nil {
		o.Heartbeat()
	}
}

// Interface converts samples into one annotation tool's on-disk layout.
// Encode must honor context cancellation promptly; the runner cancels the
// context when an item stalls or the job is cancelled.
type Interface interface {
	ID() string
	Supports(rec Record) bool
	Encode(ctx context.Context, rec Record, opts EncodeOptions) (*Artifact, error)
	Finalize(ctx context.Context, outputDir string, artifacts []Artifact) (*Manifest, error)
}

// Registry maps format identifiers to adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Interface
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Interface)}
}

// Register adds an adapter under its identifier. Duplicate registration is a
// programming error and is rejected.
func (r *Registry) Register(a Interface) error {
	if a == nil {
		return services.Wrap(services.ErrValidation, "adapter", "register", "adapter must not be nil", nil)
	}
	id := a.ID()
	if id == "" {
		return services.Wrap(services.ErrValidation, "adapter", "register", "adapter id must not be empty", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[id]; exists {
		return services.Wrap(services.ErrValidation, "adapter", "register", fmt.Sprintf("format %q already registered", id), nil)
	}
	r.adapters[id] = a
	return nil
}

// Lookup resolves a format identifier to its adapter.
func (r *Registry) Lookup(id string) (Interface, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	if !ok {
		return nil, services.Wrap(services.ErrUnknownFormat, "adapter", "lookup", fmt.Sprintf("format %q", id), nil)
	}
	return a, nil
}

// IDs returns the registered format identifiers, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
