package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/vmshub/internal/database"
	"github.com/yourusername/vmshub/internal/monitor"
	"github.com/yourusername/vmshub/internal/playback"
	"github.com/yourusername/vmshub/internal/stream"
	"github.com/yourusername/vmshub/internal/vms"
	"go.uber.org/zap"
)

// clipResponse is the clip shape returned to browsers. The provider
// href stays internal: it may carry the server API key in its path.
type clipResponse struct {
	Filename  string    `json:"filename"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end,omitempty"`
	SizeBytes int64     `json:"size_bytes,omitempty"`
}

// handleLive resolves the live-view URLs for one camera and
// opportunistically refreshes its stored status on the way out.
func (s *Server) handleLive(c *gin.Context) {
	camera, err := s.cameras.Get(c.Param("companyId"), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	urls, err := s.resolver.ResolveLive(c.Request.Context(), camera)
	if err != nil {
		s.respondError(c, err)
		return
	}

	// 전환에 성공하면 camera.Status가 갱신된 값을 가짐
	s.resolver.RefreshStatus(c.Request.Context(), camera)

	c.JSON(http.StatusOK, gin.H{
		"camera_id": camera.ID,
		"status":    camera.Status,
		"urls":      urls,
	})
}

// handlePlayback finds the recorded clip for a time window and mints a
// short-lived token URL for fetching it through the proxy endpoint.
func (s *Server) handlePlayback(c *gin.Context) {
	start, ok := requireTime(c, "start")
	if !ok {
		return
	}
	end, ok := optionalTime(c, "end")
	if !ok {
		return
	}

	camera, server, ok := s.playbackTarget(c)
	if !ok {
		return
	}

	match, err := s.clips.ResolveClip(c.Request.Context(), server, camera.VMSMonitorID, start, end)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if match == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recordings found"})
		return
	}

	token, err := s.tokens.Issue(playback.Claims{
		CameraID:  camera.ID,
		CompanyID: camera.CompanyID,
		ServerID:  server.ID,
		MonitorID: camera.VMSMonitorID,
		Filename:  match.Clip.Filename,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"clip": clipResponse{
			Filename:  match.Clip.Filename,
			Start:     match.Clip.Start,
			End:       match.Clip.End,
			SizeBytes: match.Clip.SizeBytes,
		},
		"match": match.Kind,
		"exact": match.Exact(),
		"url":   "/api/v1/playback/proxy?token=" + url.QueryEscape(token),
	})
}

// handlePlaybackRange returns the recorded time span of a camera
func (s *Server) handlePlaybackRange(c *gin.Context) {
	camera, server, ok := s.playbackTarget(c)
	if !ok {
		return
	}

	span, err := s.clips.RecordingRange(c.Request.Context(), server, camera.VMSMonitorID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if span == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recordings found"})
		return
	}

	c.JSON(http.StatusOK, span)
}

// handlePlaybackAvailability answers whether footage of a moment exists
func (s *Server) handlePlaybackAvailability(c *gin.Context) {
	ts, ok := requireTime(c, "ts")
	if !ok {
		return
	}

	camera, server, ok := s.playbackTarget(c)
	if !ok {
		return
	}

	availability, err := s.clips.CheckAvailability(c.Request.Context(), server, camera.VMSMonitorID, ts)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, availability)
}

// handlePlaybackProxy streams one clip through, gated by the token.
// The provider download URL, credentials included, never reaches the
// browser.
func (s *Server) handlePlaybackProxy(c *gin.Context) {
	claims, err := s.tokens.Verify(c.Query("token"))
	if err != nil {
		if errors.Is(err, playback.ErrTokenExpired) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
		} else {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		}
		return
	}

	// 토큰 발급 이후 규칙이 바뀌었을 수 있으므로 다시 검사
	if !playback.ValidFilename(claims.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid clip filename"})
		return
	}

	server, err := s.servers.GetWithCredentials(claims.CompanyID, claims.ServerID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	downloader, ok := s.registry.Get(server.Provider).(vms.ClipDownloader)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "provider does not support clip download"})
		return
	}

	downloadURL, err := downloader.DownloadURL(server, claims.MonitorID, claims.Filename)
	if err != nil {
		s.respondError(c, err)
		return
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), "GET", downloadURL, nil)
	if err != nil {
		s.respondError(c, err)
		return
	}

	resp, err := s.downloadClient.Do(req)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch clip from provider"})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("provider rejected clip download",
			zap.String("server_id", server.ID),
			zap.Int("status", resp.StatusCode),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": "provider rejected clip download"})
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "video/mp4"
	}
	c.Header("Content-Type", contentType)
	if resp.ContentLength >= 0 {
		c.Header("Content-Length", fmt.Sprint(resp.ContentLength))
	}
	c.Header("Content-Disposition", `attachment; filename="`+claims.Filename+`"`)
	c.Status(http.StatusOK)

	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		// 클라이언트가 중간에 끊은 경우가 대부분
		s.logger.Debug("clip streaming aborted", zap.Error(err))
	}
}

// handleServerTest runs a connection test against one VMS server
func (s *Server) handleServerTest(c *gin.Context) {
	result, err := s.tester.TestServer(c.Request.Context(), c.Param("companyId"), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleServerMonitors lists the monitors a VMS server exposes
func (s *Server) handleServerMonitors(c *gin.Context) {
	monitors, err := s.tester.DiscoverMonitors(c.Request.Context(), c.Param("companyId"), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"monitors": monitors,
		"count":    len(monitors),
	})
}

// handleReconcile triggers one reconciliation pass for the tenant and
// reports its summary. A pass already in flight answers 409.
func (s *Server) handleReconcile(c *gin.Context) {
	// 클라이언트가 끊겨도 시작한 패스는 끝까지 돈다
	summary, err := s.monitor.RunOnce(context.Background(), monitor.Options{
		CompanyID: c.Param("companyId"),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, summary)
}

// handleCameraEvents returns the audit trail of one camera
func (s *Server) handleCameraEvents(c *gin.Context) {
	companyID := c.Param("companyId")

	camera, err := s.cameras.Get(companyID, c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	events, err := s.audit.ListByResource(companyID, camera.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// playbackTarget loads the camera and its credentialed VMS server for
// playback handlers. Writes the error response itself on failure.
func (s *Server) playbackTarget(c *gin.Context) (*database.Camera, *database.VMSServer, bool) {
	camera, err := s.cameras.Get(c.Param("companyId"), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return nil, nil, false
	}

	if !camera.HasVMSLink() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "camera has no VMS link"})
		return nil, nil, false
	}

	server, err := s.servers.GetWithCredentials(camera.CompanyID, camera.VMSServerID)
	if err != nil {
		s.respondError(c, err)
		return nil, nil, false
	}

	return camera, server, true
}

// requireTime parses a mandatory RFC3339 query parameter
func requireTime(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required"})
		return time.Time{}, false
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be RFC3339"})
		return time.Time{}, false
	}

	return t, true
}

// optionalTime parses an optional RFC3339 query parameter
func optionalTime(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be RFC3339"})
		return time.Time{}, false
	}

	return t, true
}

// respondError maps domain errors onto HTTP statuses
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound), errors.Is(err, vms.ErrMonitorNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, vms.ErrNotSupported):
		c.JSON(http.StatusNotImplemented, gin.H{"error": err.Error()})
	case errors.Is(err, vms.ErrAuthMissing), errors.Is(err, stream.ErrInvalidStreamConfig):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, vms.ErrConnectionFailed):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	case errors.Is(err, monitor.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
