package vms

import (
	"context"

	"github.com/yourusername/vmshub/internal/database"
)

// Adapter talks to one kind of VMS. Implementations are stateless;
// every call carries the tenant's server record, credentials included.
type Adapter interface {
	// Provider returns the provider id this adapter serves
	Provider() string

	// TestConnection verifies the server is reachable with the stored credentials
	TestConnection(ctx context.Context, server *database.VMSServer) (TestResult, error)

	// DiscoverMonitors lists the monitors the server exposes
	DiscoverMonitors(ctx context.Context, server *database.VMSServer) ([]Monitor, error)

	// LiveStreamURLs builds the live-view URL set for one monitor
	LiveStreamURLs(ctx context.Context, server *database.VMSServer, monitorID string) (StreamURLs, error)

	// MonitorStatus reports the provider's current status of one monitor.
	// Returns ErrMonitorNotFound when the provider does not know the monitor.
	MonitorStatus(ctx context.Context, server *database.VMSServer, monitorID string) (Status, error)

	// RecordingCatalog lists up to limit recorded clips of one monitor,
	// most recent first
	RecordingCatalog(ctx context.Context, server *database.VMSServer, monitorID string, limit int) ([]RecordingClip, error)
}

// ClipDownloader is an optional adapter capability: building a direct
// download URL for a clip filename without a catalog round trip.
// Callers type-assert for it.
type ClipDownloader interface {
	DownloadURL(server *database.VMSServer, monitorID, filename string) (string, error)
}
