package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/vmshub/internal/database"
	"github.com/yourusername/vmshub/internal/status"
	"github.com/yourusername/vmshub/internal/vms"
	"go.uber.org/zap"
)

// ErrInvalidStreamConfig means the camera's stream configuration is
// malformed, e.g. a direct-rtsp camera without an RTSP URL.
var ErrInvalidStreamConfig = errors.New("invalid stream configuration")

// MediaProxy turns a direct RTSP source into a browser-playable HLS URL.
// Implementations live outside this package; direct-stream credentials
// are disclosed to them and to nothing else.
type MediaProxy interface {
	EnsureLive(ctx context.Context, camera *database.Camera) (string, error)
}

// Resolver answers "how do I watch this camera right now".
// VMS-linked cameras get the provider's URL set untouched; direct
// cameras get a single proxied HLS URL.
type Resolver struct {
	servers  *database.VMSServerRepository
	registry *vms.Registry
	proxy    MediaProxy
	tracker  *status.Tracker
	logger   *zap.Logger
}

// ResolverConfig holds the configuration for Resolver
type ResolverConfig struct {
	Servers  *database.VMSServerRepository
	Registry *vms.Registry
	Proxy    MediaProxy
	Tracker  *status.Tracker
	Logger   *zap.Logger
}

// NewResolver creates a new stream Resolver
func NewResolver(config ResolverConfig) *Resolver {
	return &Resolver{
		servers:  config.Servers,
		registry: config.Registry,
		proxy:    config.Proxy,
		tracker:  config.Tracker,
		logger:   config.Logger,
	}
}

// ResolveLive resolves the live-view URL set of a camera.
// A camera with no stream configuration at all resolves to an empty set
// with no error: "nothing to watch" is a valid terminal state.
func (r *Resolver) ResolveLive(ctx context.Context, camera *database.Camera) (vms.StreamURLs, error) {
	switch {
	case camera.IsDirectRTSP():
		return r.resolveDirect(ctx, camera)
	case camera.HasVMSLink():
		return r.resolveVMS(ctx, camera)
	default:
		return vms.StreamURLs{}, nil
	}
}

func (r *Resolver) resolveDirect(ctx context.Context, camera *database.Camera) (vms.StreamURLs, error) {
	if camera.RTSPURL == "" {
		return vms.StreamURLs{}, fmt.Errorf("camera %s has no rtsp url: %w", camera.ID, ErrInvalidStreamConfig)
	}
	if r.proxy == nil {
		return vms.StreamURLs{}, fmt.Errorf("camera %s needs a media proxy and none is configured: %w", camera.ID, ErrInvalidStreamConfig)
	}

	hlsURL, err := r.proxy.EnsureLive(ctx, camera)
	if err != nil {
		return vms.StreamURLs{}, fmt.Errorf("media proxy failed for camera %s: %w", camera.ID, err)
	}

	return vms.StreamURLs{HLS: hlsURL}, nil
}

func (r *Resolver) resolveVMS(ctx context.Context, camera *database.Camera) (vms.StreamURLs, error) {
	server, err := r.servers.GetWithCredentials(camera.CompanyID, camera.VMSServerID)
	if err != nil {
		return vms.StreamURLs{}, err
	}

	if !vms.CapabilitiesFor(server.Provider).SupportsLive {
		return vms.StreamURLs{}, fmt.Errorf("provider %q live view: %w", server.Provider, vms.ErrNotSupported)
	}

	return r.registry.Get(server.Provider).LiveStreamURLs(ctx, server, camera.VMSMonitorID)
}

// RefreshStatus asks the provider for the camera's current status and,
// when it differs from the stored one, applies the transition. Purely
// best-effort freshness between scheduler passes: every failure is
// swallowed and logged, and callers invoke it explicitly so the write
// stays visible in the contract (and easy to leave out in tests).
func (r *Resolver) RefreshStatus(ctx context.Context, camera *database.Camera) {
	if !camera.HasVMSLink() {
		return
	}

	server, err := r.servers.GetWithCredentials(camera.CompanyID, camera.VMSServerID)
	if err != nil {
		r.logger.Debug("Status refresh skipped, server lookup failed",
			zap.String("camera_id", camera.ID),
			zap.Error(err),
		)
		return
	}

	current, err := r.registry.Get(server.Provider).MonitorStatus(ctx, server, camera.VMSMonitorID)
	if err != nil {
		r.logger.Debug("Status refresh skipped, provider query failed",
			zap.String("camera_id", camera.ID),
			zap.Error(err),
		)
		return
	}

	_, err = r.tracker.Transition(camera, current, time.Now(), status.ReasonStreamResolve, "", uuid.NewString())
	if err != nil {
		r.logger.Warn("Status refresh write failed",
			zap.String("camera_id", camera.ID),
			zap.Error(err),
		)
	}
}
