package mediaproxy

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/yourusername/vmshub/internal/database"
	"go.uber.org/zap"
)

// relay는 카메라 하나를 담당하는 ffmpeg 프로세스입니다
type relay struct {
	cameraID   string
	pathName   string
	sourceURL  string
	transport  string
	cmd        *exec.Cmd
	cancelFunc context.CancelFunc
	startedAt  time.Time
	lastAccess time.Time
}

// FFmpegProxy runs one ffmpeg relay per camera, copying the RTSP feed
// into a local HLS directory served by the HTTP layer. Relays are
// started on demand, restarted when they die and reaped when no one
// has asked for the stream for a while.
type FFmpegProxy struct {
	binary        string
	outputDir     string
	publicBaseURL string
	idleTimeout   time.Duration
	restartDelay  time.Duration
	logger        *zap.Logger

	relays map[string]*relay
	mutex  sync.RWMutex
	done   chan struct{}
}

// FFmpegConfig holds the configuration for FFmpegProxy
type FFmpegConfig struct {
	Binary        string
	OutputDir     string
	PublicBaseURL string
	IdleTimeout   time.Duration
	RestartDelay  time.Duration
	Logger        *zap.Logger
}

// NewFFmpeg creates a new FFmpegProxy
func NewFFmpeg(config FFmpegConfig) *FFmpegProxy {
	binary := config.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	idleTimeout := config.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 120 * time.Second
	}
	restartDelay := config.RestartDelay
	if restartDelay <= 0 {
		restartDelay = 2 * time.Second
	}

	return &FFmpegProxy{
		binary:        binary,
		outputDir:     config.OutputDir,
		publicBaseURL: config.PublicBaseURL,
		idleTimeout:   idleTimeout,
		restartDelay:  restartDelay,
		logger:        config.Logger,
		relays:        make(map[string]*relay),
		done:          make(chan struct{}),
	}
}

// EnsureLive starts a relay for the camera if none is running and
// returns the HLS playlist URL. An existing relay only gets its
// activity timestamp refreshed; restarts are handled by the sweeper.
func (p *FFmpegProxy) EnsureLive(ctx context.Context, camera *database.Camera) (string, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if r, exists := p.relays[camera.ID]; exists {
		r.lastAccess = time.Now()
		return p.playlistURL(r.pathName), nil
	}

	pathName := "cam-" + camera.ID
	transport := camera.RTSPTransport
	if transport == "" {
		transport = "tcp"
	}

	r := &relay{
		cameraID:   camera.ID,
		pathName:   pathName,
		sourceURL:  sourceURL(camera),
		transport:  transport,
		lastAccess: time.Now(),
	}

	if err := p.startRelay(r); err != nil {
		return "", err
	}

	p.relays[camera.ID] = r
	go p.monitorRelay(r)

	p.logger.Info("ffmpeg relay started",
		zap.String("camera_id", camera.ID),
		zap.String("path", pathName),
		zap.String("source", maskSourceURL(camera.RTSPURL)),
	)

	return p.playlistURL(pathName), nil
}

// startRelay launches the ffmpeg process. Caller must hold p.mutex.
func (p *FFmpegProxy) startRelay(r *relay) error {
	streamDir := filepath.Join(p.outputDir, r.pathName)
	if err := os.MkdirAll(streamDir, 0755); err != nil {
		return fmt.Errorf("failed to create stream directory: %w", err)
	}

	args := []string{
		"-rtsp_transport", r.transport,
		"-i", r.sourceURL,
		"-c", "copy",
		"-f", "hls",
		"-hls_time", "2",
		"-hls_list_size", "6",
		"-hls_flags", "delete_segments+append_list",
		filepath.Join(streamDir, "index.m3u8"),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, p.binary, args...)

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	r.cmd = cmd
	r.cancelFunc = cancel
	r.startedAt = time.Now()
	return nil
}

// monitorRelay waits on the ffmpeg process and restarts it as long as
// this exact relay is still the one registered for its camera. A
// deliberate stop removes the relay from the map before cancelling,
// which ends this loop. The checks compare pointers, not just map
// membership: the camera may have been reaped and re-registered while
// we slept, and that replacement relay has a monitor of its own.
func (p *FFmpegProxy) monitorRelay(r *relay) {
	for {
		p.mutex.RLock()
		current := p.relays[r.cameraID] == r
		cmd := r.cmd
		p.mutex.RUnlock()

		if !current {
			return
		}

		err := cmd.Wait()

		p.mutex.RLock()
		current = p.relays[r.cameraID] == r
		p.mutex.RUnlock()
		if !current {
			return
		}

		if err != nil {
			p.logger.Error("ffmpeg relay exited unexpectedly",
				zap.String("camera_id", r.cameraID),
				zap.Error(err),
			)
		} else {
			p.logger.Warn("ffmpeg relay exited", zap.String("camera_id", r.cameraID))
		}

		// 재시작 전 잠시 대기
		time.Sleep(p.restartDelay)

		p.mutex.Lock()
		if p.relays[r.cameraID] != r {
			p.mutex.Unlock()
			return
		}
		if err := p.startRelay(r); err != nil {
			p.logger.Error("failed to restart ffmpeg relay",
				zap.String("camera_id", r.cameraID),
				zap.Error(err),
			)
			delete(p.relays, r.cameraID)
			p.mutex.Unlock()
			return
		}
		p.logger.Info("ffmpeg relay restarted", zap.String("camera_id", r.cameraID))
		p.mutex.Unlock()
	}
}

// StartSweeper runs the periodic housekeeping loop: idle relays are
// stopped and relays whose playlist went stale are bounced.
func (p *FFmpegProxy) StartSweeper() {
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.sweep()
			case <-p.done:
				return
			}
		}
	}()
}

func (p *FFmpegProxy) sweep() {
	now := time.Now()

	p.mutex.Lock()
	defer p.mutex.Unlock()

	for cameraID, r := range p.relays {
		if now.Sub(r.lastAccess) > p.idleTimeout {
			p.logger.Info("stopping idle ffmpeg relay",
				zap.String("camera_id", cameraID),
				zap.Duration("idle", now.Sub(r.lastAccess)),
			)
			p.removeRelay(cameraID, r)
			continue
		}

		// 시작 직후에는 플레이리스트가 아직 없을 수 있음
		if now.Sub(r.startedAt) < 30*time.Second {
			continue
		}

		playlistPath := filepath.Join(p.outputDir, r.pathName, "index.m3u8")
		if !PlaylistAlive(playlistPath, 30*time.Second) {
			p.logger.Warn("playlist stale, bouncing ffmpeg relay",
				zap.String("camera_id", cameraID),
			)
			// 프로세스만 종료하면 monitorRelay가 재시작합니다
			r.cancelFunc()
		}
	}
}

// removeRelay stops a relay and cleans its output directory.
// Caller must hold p.mutex.
func (p *FFmpegProxy) removeRelay(cameraID string, r *relay) {
	delete(p.relays, cameraID)
	r.cancelFunc()
	if err := os.RemoveAll(filepath.Join(p.outputDir, r.pathName)); err != nil {
		p.logger.Warn("failed to remove stream directory",
			zap.String("camera_id", cameraID),
			zap.Error(err),
		)
	}
}

// StopAll stops the sweeper and every running relay.
func (p *FFmpegProxy) StopAll() {
	close(p.done)

	p.mutex.Lock()
	defer p.mutex.Unlock()

	for cameraID, r := range p.relays {
		p.logger.Info("stopping ffmpeg relay", zap.String("camera_id", cameraID))
		p.removeRelay(cameraID, r)
	}
}

func (p *FFmpegProxy) playlistURL(pathName string) string {
	return fmt.Sprintf("%s/%s/index.m3u8", p.publicBaseURL, pathName)
}

// RelayCount returns the number of running relays
func (p *FFmpegProxy) RelayCount() int {
	p.mutex.RLock()
	defer p.mutex.RUnlock()
	return len(p.relays)
}
