package shinobi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/yourusername/vmshub/internal/database"
	"github.com/yourusername/vmshub/internal/vms"
)

// videosResponse is the provider's recording catalog envelope
type videosResponse struct {
	OK     bool        `json:"ok"`
	Videos []videoInfo `json:"videos"`
}

type videoInfo struct {
	Filename string `json:"filename"`
	Time     string `json:"time"`
	End      string `json:"end"`
	Href     string `json:"href"`
	Size     int64  `json:"size"`
}

// RecordingCatalog lists up to limit recorded clips of one monitor.
// Clip hrefs are rebuilt as provider-side download locations and stay
// internal: they carry the api key in the path. Provider timestamps
// that fail to parse leave the clip's times zeroed.
func (a *Adapter) RecordingCatalog(ctx context.Context, server *database.VMSServer, monitorID string, limit int) ([]vms.RecordingClip, error) {
	apiKey, groupKey, err := credentials(server)
	if err != nil {
		return nil, err
	}

	catalogURL := fmt.Sprintf("%s/%s/videos/%s/%s", apiBase(server), apiKey, groupKey, monitorID)
	if limit > 0 {
		catalogURL = fmt.Sprintf("%s?limit=%d", catalogURL, limit)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", catalogURL, nil)
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
		return nil, fmt.Errorf("%w: video catalog returned status %d: %s", vms.ErrConnectionFailed, resp.StatusCode, string(body))
	}

	var catalog videosResponse
	if err := json.NewDecoder(resp.Body).Decode(&catalog); err != nil {
		return nil, fmt.Errorf("failed to decode video catalog: %w", err)
	}

	downloadBase := apiBase(server)
	clips := make([]vms.RecordingClip, 0, len(catalog.Videos))
	for _, v := range catalog.Videos {
		clips = append(clips, vms.RecordingClip{
			Filename:  v.Filename,
			Href:      fmt.Sprintf("%s/%s/videos/%s/%s/%s", downloadBase, apiKey, groupKey, monitorID, url.PathEscape(v.Filename)),
			SizeBytes: v.Size,
			Start:     parseClipTime(v.Time),
			End:       parseClipTime(v.End),
		})
	}

	return clips, nil
}

// DownloadURL builds the provider-side download URL of one clip, for
// the playback proxy to fetch through. The filename goes through URL
// encoding; callers are expected to have validated it against the
// playback filename rule beforehand.
func (a *Adapter) DownloadURL(server *database.VMSServer, monitorID, filename string) (string, error) {
	apiKey, groupKey, err := credentials(server)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s/%s/videos/%s/%s/%s",
		apiBase(server), apiKey, groupKey, monitorID, url.PathEscape(filename)), nil
}

// parseClipTime reads a provider timestamp. Shinobi answers RFC3339 in
// recent builds and a bare local layout in older ones; anything else
// yields the zero time.
func parseClipTime(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", raw); err == nil {
		return t
	}
	return time.Time{}
}
