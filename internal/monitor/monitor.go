package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/vmshub/internal/database"
	"github.com/yourusername/vmshub/internal/status"
	"github.com/yourusername/vmshub/internal/vms"
	"go.uber.org/zap"
)

// ErrAlreadyRunning means a reconciliation pass is in flight; the call
// returned without touching any camera.
var ErrAlreadyRunning = errors.New("reconciliation pass already running")

// Options scopes one reconciliation pass. An empty CompanyID sweeps
// every tenant; writes still scope by each camera's own tenant.
type Options struct {
	CompanyID string
}

// Summary is the outcome of one reconciliation pass
type Summary struct {
	Checked       int    `json:"checked"`
	Changed       int    `json:"changed"`
	Skipped       int    `json:"skipped"`
	Errors        int    `json:"errors"`
	CorrelationID string `json:"correlation_id"`
}

// StatusMonitor reconciles persisted camera status against provider and
// probe ground truth on a fixed interval. One pass runs at a time: the
// running flag is a coarse single-flight guard, per process only. It is
// not a distributed lock; running several instances against one
// database needs external coordination.
type StatusMonitor struct {
	cameras  *database.CameraRepository
	servers  *database.VMSServerRepository
	registry *vms.Registry
	prober   Prober
	tracker  *status.Tracker
	logger   *zap.Logger

	interval    time.Duration
	concurrency int
	running     atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds the configuration for StatusMonitor
type Config struct {
	Cameras  *database.CameraRepository
	Servers  *database.VMSServerRepository
	Registry *vms.Registry
	Prober   Prober
	Tracker  *status.Tracker
	Logger   *zap.Logger

	IntervalSec int // 패스 간격 (초)
	Concurrency int // 패스 내 동시 점검 카메라 수 (1 = 순차)
}

// New creates a new StatusMonitor
func New(config Config) *StatusMonitor {
	interval := config.IntervalSec
	if interval <= 0 {
		interval = 60 // 60 seconds default
	}

	concurrency := config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &StatusMonitor{
		cameras:     config.Cameras,
		servers:     config.Servers,
		registry:    config.Registry,
		prober:      config.Prober,
		tracker:     config.Tracker,
		logger:      config.Logger,
		interval:    time.Duration(interval) * time.Second,
		concurrency: concurrency,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start installs the fixed-interval reconciliation timer
func (m *StatusMonitor) Start() {
	m.logger.Info("Starting camera status monitor",
		zap.Duration("interval", m.interval),
		zap.Int("concurrency", m.concurrency),
	)

	go m.loop()
}

// Stop cancels future passes. An in-flight pass finishes on its own;
// its provider calls are bounded by their own timeouts.
func (m *StatusMonitor) Stop() {
	m.logger.Info("Stopping camera status monitor")
	m.cancel()
}

// Running reports whether a reconciliation pass is in flight
func (m *StatusMonitor) Running() bool {
	return m.running.Load()
}

func (m *StatusMonitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// 패스 자체는 Stop()과 독립된 수명을 가짐
			summary, err := m.RunOnce(context.Background(), Options{})
			if err != nil {
				if errors.Is(err, ErrAlreadyRunning) {
					m.logger.Debug("Previous pass still running, tick skipped")
					continue
				}
				m.logger.Error("Reconciliation pass failed", zap.Error(err))
				continue
			}
			m.logger.Info("Reconciliation pass completed",
				zap.Int("checked", summary.Checked),
				zap.Int("changed", summary.Changed),
				zap.Int("skipped", summary.Skipped),
				zap.Int("errors", summary.Errors),
				zap.String("correlation_id", summary.CorrelationID),
			)
		case <-m.ctx.Done():
			return
		}
	}
}

// RunOnce executes one reconciliation pass. Single-flight: a call while
// a pass is running returns ErrAlreadyRunning without any provider call
// or write. One camera's failure never aborts the rest of the pass.
func (m *StatusMonitor) RunOnce(ctx context.Context, opts Options) (Summary, error) {
	if !m.running.CompareAndSwap(false, true) {
		return Summary{}, ErrAlreadyRunning
	}
	defer m.running.Store(false)

	summary := Summary{CorrelationID: uuid.NewString()}

	var (
		cameras []*database.Camera
		err     error
	)
	if opts.CompanyID != "" {
		cameras, err = m.cameras.ListByCompany(opts.CompanyID)
	} else {
		cameras, err = m.cameras.ListAll()
	}
	if err != nil {
		return summary, fmt.Errorf("failed to list cameras: %w", err)
	}

	var mu sync.Mutex
	process := func(camera *database.Camera) {
		outcome := m.processCamera(ctx, camera, summary.CorrelationID)

		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case outcomeSkipped:
			summary.Skipped++
		case outcomeChanged:
			summary.Checked++
			summary.Changed++
		case outcomeUnchanged:
			summary.Checked++
		case outcomeFailed:
			summary.Checked++
			summary.Errors++
		}
	}

	if m.concurrency <= 1 {
		for _, camera := range cameras {
			process(camera)
		}
	} else {
		jobs := make(chan *database.Camera)
		var wg sync.WaitGroup
		for i := 0; i < m.concurrency; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for camera := range jobs {
					process(camera)
				}
			}()
		}
		for _, camera := range cameras {
			jobs <- camera
		}
		close(jobs)
		wg.Wait()
	}

	return summary, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeChanged
	outcomeUnchanged
	outcomeFailed
)

// processCamera derives and applies one camera's status
func (m *StatusMonitor) processCamera(ctx context.Context, camera *database.Camera, correlationID string) outcome {
	derived, detail, skip := m.deriveStatus(ctx, camera)
	if skip {
		return outcomeSkipped
	}

	changed, err := m.tracker.Transition(camera, derived, time.Now(), status.ReasonScheduler, detail, correlationID)
	if err != nil {
		m.logger.Error("Failed to apply camera status",
			zap.String("camera_id", camera.ID),
			zap.String("company_id", camera.CompanyID),
			zap.Error(err),
		)
		return outcomeFailed
	}

	if changed {
		return outcomeChanged
	}
	return outcomeUnchanged
}

// deriveStatus runs the per-camera state machine: direct cameras get an
// RTSP probe, VMS-linked cameras get a provider status query, and
// unconfigured cameras produce no opinion at all.
func (m *StatusMonitor) deriveStatus(ctx context.Context, camera *database.Camera) (vms.Status, string, bool) {
	switch {
	case camera.IsDirectRTSP():
		if err := m.prober.Probe(ctx, camera); err != nil {
			m.logger.Debug("RTSP probe failed",
				zap.String("camera_id", camera.ID),
				zap.Error(err),
			)
			return vms.StatusOffline, fmt.Sprintf("RTSP probe failed: %v", err), false
		}
		return vms.StatusOnline, "", false

	case camera.HasVMSLink():
		return m.deriveVMSStatus(ctx, camera)

	default:
		// 스트림 구성이 없는 카메라에는 상태 의견을 내지 않음
		return "", "", true
	}
}

func (m *StatusMonitor) deriveVMSStatus(ctx context.Context, camera *database.Camera) (vms.Status, string, bool) {
	server, err := m.servers.GetWithCredentials(camera.CompanyID, camera.VMSServerID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return vms.StatusError, "VMS server not found", false
		}
		m.logger.Error("Failed to load VMS server",
			zap.String("camera_id", camera.ID),
			zap.String("server_id", camera.VMSServerID),
			zap.Error(err),
		)
		return vms.StatusError, "VMS status check failed", false
	}

	current, err := m.registry.Get(server.Provider).MonitorStatus(ctx, server, camera.VMSMonitorID)
	if err != nil {
		if errors.Is(err, vms.ErrMonitorNotFound) {
			return vms.StatusOffline, "VMS monitor not found", false
		}
		m.logger.Debug("VMS status query failed",
			zap.String("camera_id", camera.ID),
			zap.String("monitor_id", camera.VMSMonitorID),
			zap.Error(err),
		)
		return vms.StatusError, "VMS status check failed", false
	}

	return current, "", false
}
