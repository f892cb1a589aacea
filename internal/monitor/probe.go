package monitor

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/yourusername/vmshub/internal/database"
	"go.uber.org/zap"
)

// Prober checks whether a camera's direct stream endpoint is alive
type Prober interface {
	Probe(ctx context.Context, camera *database.Camera) error
}

// RTSPProber dials a camera's RTSP endpoint and requests a stream
// description. A completed DESCRIBE within the timeout counts as alive;
// no media is set up or played.
type RTSPProber struct {
	timeout time.Duration
	logger  *zap.Logger
}

// RTSPProberConfig holds the configuration for RTSPProber
type RTSPProberConfig struct {
	TimeoutSec int // 프로브 타임아웃 (초)
	Logger     *zap.Logger
}

// NewRTSPProber creates a new RTSPProber
func NewRTSPProber(config RTSPProberConfig) *RTSPProber {
	timeout := config.TimeoutSec
	if timeout <= 0 {
		timeout = 5 // 5 seconds default
	}

	return &RTSPProber{
		timeout: time.Duration(timeout) * time.Second,
		logger:  config.Logger,
	}
}

// Probe connects and issues a DESCRIBE against the camera's RTSP URL
func (p *RTSPProber) Probe(ctx context.Context, camera *database.Camera) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	u, err := url.Parse(camera.RTSPURL)
	if err != nil {
		return fmt.Errorf("invalid RTSP URL: %w", err)
	}

	// 카메라에 별도 자격증명이 있으면 URL userinfo로 전달
	if camera.RTSPUsername != "" {
		u.User = url.UserPassword(camera.RTSPUsername, camera.RTSPPassword)
	}

	client := &gortsplib.Client{
		Transport:    p.transportFor(camera),
		ReadTimeout:  p.timeout,
		WriteTimeout: p.timeout,
	}

	if err := client.Start(u.Scheme, u.Host); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer client.Close()

	baseURL, err := base.ParseURL(u.String())
	if err != nil {
		return fmt.Errorf("failed to parse base URL: %w", err)
	}

	if _, _, err := client.Describe(baseURL); err != nil {
		return fmt.Errorf("failed to describe: %w", err)
	}

	p.logger.Debug("RTSP probe succeeded",
		zap.String("camera_id", camera.ID),
		zap.String("url", maskURL(camera.RTSPURL)),
	)

	return nil
}

// transportFor returns the transport protocol configured on the camera
func (p *RTSPProber) transportFor(camera *database.Camera) *gortsplib.Transport {
	if camera.RTSPTransport == "udp" {
		transport := gortsplib.TransportUDP
		return &transport
	}
	transport := gortsplib.TransportTCP
	return &transport
}

// maskURL은 비밀번호를 마스킹한 URL을 반환합니다
func maskURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "***"
	}

	if u.User != nil {
		u.User = url.UserPassword("***", "***")
	}

	return u.String()
}
