package shinobi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yourusername/vmshub/internal/database"
	"github.com/yourusername/vmshub/internal/vms"
	"go.uber.org/zap"
)

// monitorInfo is the provider's own monitor representation
type monitorInfo struct {
	MID    string `json:"mid"`
	Name   string `json:"name"`
	Mode   string `json:"mode"`
	Status string `json:"status"`
	Host   string `json:"host"`
	Type   string `json:"type"`
}

// Adapter talks to a Shinobi-compatible VMS over its HTTP API.
// Endpoints are path-templated on the server's api key and group key;
// both must be present on the server record before any call goes out.
type Adapter struct {
	httpClient *http.Client
	rewrite    vms.URLRewriteFunc
	logger     *zap.Logger
}

// Config holds the configuration for the Shinobi adapter
type Config struct {
	RequestTimeoutSec int // API 요청 타임아웃 (초)
	Rewrite           vms.URLRewriteFunc
	Logger            *zap.Logger
}

// New creates a new Shinobi adapter
func New(config Config) *Adapter {
	requestTimeout := config.RequestTimeoutSec
	if requestTimeout == 0 {
		requestTimeout = 10 // 10 seconds default
	}

	rewrite := config.Rewrite
	if rewrite == nil {
		rewrite = vms.IdentityRewrite
	}

	return &Adapter{
		httpClient: &http.Client{
			Timeout: time.Duration(requestTimeout) * time.Second,
		},
		rewrite: rewrite,
		logger:  config.Logger,
	}
}

// Provider returns the provider id this adapter serves
func (a *Adapter) Provider() string {
	return vms.ProviderShinobi
}

// credentials extracts the api key and group key, failing fast when
// either is missing so no request ever leaves without auth material.
func credentials(server *database.VMSServer) (string, string, error) {
	if server.APIKey == "" || server.GroupKey == "" {
		return "", "", fmt.Errorf("server %s: %w", server.ID, vms.ErrAuthMissing)
	}
	return server.APIKey, server.GroupKey, nil
}

// apiBase is the internal base URL used for provider API calls
func apiBase(server *database.VMSServer) string {
	return strings.TrimRight(server.BaseURL, "/")
}

// browserBase is the base URL embedded into client-facing links.
// The explicit public base wins; otherwise the internal base goes
// through the configured URL-rewrite policy.
func (a *Adapter) browserBase(server *database.VMSServer) string {
	if server.PublicBaseURL != "" {
		return strings.TrimRight(server.PublicBaseURL, "/")
	}
	return a.rewrite(apiBase(server))
}

// TestConnection verifies the server answers the monitor list endpoint
func (a *Adapter) TestConnection(ctx context.Context, server *database.VMSServer) (vms.TestResult, error) {
	monitors, err := a.DiscoverMonitors(ctx, server)
	if err != nil {
		return vms.TestResult{}, err
	}

	return vms.TestResult{
		Success:      true,
		Message:      fmt.Sprintf("connected, %d monitors visible", len(monitors)),
		MonitorCount: len(monitors),
	}, nil
}

// DiscoverMonitors lists every monitor the group exposes
func (a *Adapter) DiscoverMonitors(ctx context.Context, server *database.VMSServer) ([]vms.Monitor, error) {
	apiKey, groupKey, err := credentials(server)
	if err != nil {
		return nil, err
	}

	listURL := fmt.Sprintf("%s/%s/monitor/%s", apiBase(server), apiKey, groupKey)
	raw, err := a.fetchMonitors(ctx, listURL)
	if err != nil {
		return nil, err
	}

	monitors := make([]vms.Monitor, 0, len(raw))
	for _, m := range raw {
		monitors = append(monitors, vms.Monitor{
			ID:     m.MID,
			Name:   m.Name,
			Mode:   m.Mode,
			Status: vms.MapProviderStatus(m.Status),
			Host:   m.Host,
			Type:   m.Type,
		})
	}

	return monitors, nil
}

// LiveStreamURLs builds the live-view URL set for one monitor.
// Shinobi URLs are fully path-templated, so no provider call is needed.
func (a *Adapter) LiveStreamURLs(ctx context.Context, server *database.VMSServer, monitorID string) (vms.StreamURLs, error) {
	apiKey, groupKey, err := credentials(server)
	if err != nil {
		return vms.StreamURLs{}, err
	}

	base := a.browserBase(server)
	return vms.StreamURLs{
		HLS:      fmt.Sprintf("%s/%s/hls/%s/%s/s.m3u8", base, apiKey, groupKey, monitorID),
		Embed:    fmt.Sprintf("%s/%s/embed/%s/%s", base, apiKey, groupKey, monitorID),
		Snapshot: fmt.Sprintf("%s/%s/jpeg/%s/%s/s.jpg", base, apiKey, groupKey, monitorID),
	}, nil
}

// MonitorStatus reports the canonical status of one monitor.
// The monitor list endpoint is the source of truth; a monitor absent
// from the list yields ErrMonitorNotFound.
func (a *Adapter) MonitorStatus(ctx context.Context, server *database.VMSServer, monitorID string) (vms.Status, error) {
	apiKey, groupKey, err := credentials(server)
	if err != nil {
		return vms.StatusOffline, err
	}

	listURL := fmt.Sprintf("%s/%s/monitor/%s", apiBase(server), apiKey, groupKey)
	raw, err := a.fetchMonitors(ctx, listURL)
	if err != nil {
		return vms.StatusOffline, err
	}

	for _, m := range raw {
		if m.MID == monitorID {
			return vms.MapProviderStatus(m.Status), nil
		}
	}

	return vms.StatusOffline, fmt.Errorf("monitor %s: %w", monitorID, vms.ErrMonitorNotFound)
}

// fetchMonitors retrieves and decodes a monitor list response.
// Shinobi may answer with a bare array or a single monitor object.
func (a *Adapter) fetchMonitors(ctx context.Context, listURL string) ([]monitorInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", listURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vms.ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: monitor list returned status %d: %s", vms.ErrConnectionFailed, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var monitors []monitorInfo
	if err := json.Unmarshal(body, &monitors); err != nil {
		// Some deployments answer with a single object instead of an array
		var single monitorInfo
		if err2 := json.Unmarshal(body, &single); err2 != nil || single.MID == "" {
			return nil, fmt.Errorf("failed to decode monitor list: %w, body: %s", err, string(body))
		}
		monitors = []monitorInfo{single}
	}

	return monitors, nil
}
