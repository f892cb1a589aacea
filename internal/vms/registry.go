package vms

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/yourusername/vmshub/internal/database"
)

// Registry holds the registered provider adapters. Lookups never fail:
// an unknown provider resolves to an adapter whose every call reports
// ErrNotSupported, so callers branch on the error, not on nil.
type Registry struct {
	adapters map[string]Adapter
	mutex    sync.RWMutex
}

// NewRegistry creates an empty adapter registry
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter under its provider id
func (r *Registry) Register(adapter Adapter) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.adapters[strings.ToLower(adapter.Provider())] = adapter
}

// Get returns the adapter for a provider id
func (r *Registry) Get(provider string) Adapter {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if adapter, ok := r.adapters[strings.ToLower(strings.TrimSpace(provider))]; ok {
		return adapter
	}
	return unsupportedAdapter{provider: provider}
}

// unsupportedAdapter answers every call with ErrNotSupported
type unsupportedAdapter struct {
	provider string
}

func (a unsupportedAdapter) Provider() string {
	return a.provider
}

func (a unsupportedAdapter) err() error {
	return fmt.Errorf("provider %q: %w", a.provider, ErrNotSupported)
}

func (a unsupportedAdapter) TestConnection(ctx context.Context, server *database.VMSServer) (TestResult, error) {
	return TestResult{}, a.err()
}

func (a unsupportedAdapter) DiscoverMonitors(ctx context.Context, server *database.VMSServer) ([]Monitor, error) {
	return nil, a.err()
}

func (a unsupportedAdapter) LiveStreamURLs(ctx context.Context, server *database.VMSServer, monitorID string) (StreamURLs, error) {
	return StreamURLs{}, a.err()
}

func (a unsupportedAdapter) MonitorStatus(ctx context.Context, server *database.VMSServer, monitorID string) (Status, error) {
	return StatusOffline, a.err()
}

func (a unsupportedAdapter) RecordingCatalog(ctx context.Context, server *database.VMSServer, monitorID string, limit int) ([]RecordingClip, error) {
	return nil, a.err()
}
