package mediaproxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/yourusername/vmshub/internal/database"
	"go.uber.org/zap"
)

// MediaMTXProxy provisions pull paths on an external MediaMTX instance.
// MediaMTX does the RTSP pulling and HLS serving; this client only
// patches its runtime config and hands out the resulting playlist URL.
type MediaMTXProxy struct {
	apiURL           string
	hlsBaseURL       string
	reprovisionAfter time.Duration
	httpClient       *http.Client
	logger           *zap.Logger

	activePaths map[string]provisionedPath // camera id 기준
	mu          sync.RWMutex
}

// provisionedPath remembers when a path was last patched into MediaMTX
type provisionedPath struct {
	name      string
	patchedAt time.Time
}

// MediaMTXConfig holds the configuration for MediaMTXProxy
type MediaMTXConfig struct {
	APIURL           string
	HLSBaseURL       string
	ReprovisionAfter time.Duration
	Logger           *zap.Logger
}

// NewMediaMTX creates a new MediaMTXProxy
func NewMediaMTX(config MediaMTXConfig) *MediaMTXProxy {
	reprovisionAfter := config.ReprovisionAfter
	if reprovisionAfter <= 0 {
		reprovisionAfter = time.Minute
	}

	return &MediaMTXProxy{
		apiURL:           strings.TrimRight(config.APIURL, "/"),
		hlsBaseURL:       strings.TrimRight(config.HLSBaseURL, "/"),
		reprovisionAfter: reprovisionAfter,
		httpClient:       &http.Client{Timeout: 10 * time.Second},
		logger:           config.Logger,
		activePaths:      make(map[string]provisionedPath),
	}
}

// EnsureLive makes sure a MediaMTX path pulls the camera's RTSP source
// and returns the browser-facing HLS playlist URL. A recently patched
// path is reused without an API call. Entries older than
// reprovisionAfter are patched again: the patch is idempotent, and a
// restarted MediaMTX loses runtime-patched paths, so the next live
// request brings the path back.
func (p *MediaMTXProxy) EnsureLive(ctx context.Context, camera *database.Camera) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, exists := p.activePaths[camera.ID]; exists && time.Since(entry.patchedAt) < p.reprovisionAfter {
		return p.hlsURL(entry.name), nil
	}

	pathName := "cam-" + camera.ID

	// MediaMTX config patch API: {"paths": {name: {...}}}
	patchConfig := map[string]any{
		"paths": map[string]any{
			pathName: map[string]any{
				"source":                     sourceURL(camera),
				"sourceOnDemand":             true,
				"sourceOnDemandStartTimeout": "10s",
				"sourceOnDemandCloseAfter":   "10s",
				"sourceProtocol":             camera.RTSPTransport,
			},
		},
	}

	configJSON, err := json.Marshal(patchConfig)
	if err != nil {
		return "", fmt.Errorf("failed to marshal path config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.apiURL+"/v2/config/patch", bytes.NewBuffer(configJSON))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to configure MediaMTX path: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("MediaMTX API error (status %d): %s", resp.StatusCode, string(body))
	}

	p.activePaths[camera.ID] = provisionedPath{name: pathName, patchedAt: time.Now()}

	p.logger.Info("MediaMTX path configured",
		zap.String("camera_id", camera.ID),
		zap.String("path", pathName),
		zap.String("source", maskSourceURL(camera.RTSPURL)),
	)

	return p.hlsURL(pathName), nil
}

func (p *MediaMTXProxy) hlsURL(pathName string) string {
	return fmt.Sprintf("%s/%s/index.m3u8", p.hlsBaseURL, pathName)
}

// sourceURL builds the RTSP pull URL, embedding camera credentials as
// URL userinfo when present. Only proxies ever see this URL.
func sourceURL(camera *database.Camera) string {
	if camera.RTSPUsername == "" {
		return camera.RTSPURL
	}

	u, err := url.Parse(camera.RTSPURL)
	if err != nil {
		return camera.RTSPURL
	}
	u.User = url.UserPassword(camera.RTSPUsername, camera.RTSPPassword)
	return u.String()
}

// maskSourceURL은 비밀번호를 마스킹한 URL을 반환합니다
func maskSourceURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "***"
	}

	if u.User != nil {
		u.User = url.UserPassword("***", "***")
	}

	return u.String()
}
