package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/vmshub/internal/audit"
	"github.com/yourusername/vmshub/internal/database"
	"github.com/yourusername/vmshub/internal/status"
	"github.com/yourusername/vmshub/internal/vms"
)

type fakeProber struct {
	err   error
	calls atomic.Int32
}

func (p *fakeProber) Probe(ctx context.Context, camera *database.Camera) error {
	p.calls.Add(1)
	return p.err
}

// blockingProber holds a pass open until released, for single-flight tests
type blockingProber struct {
	entered chan struct{}
	release chan struct{}
}

func (p *blockingProber) Probe(ctx context.Context, camera *database.Camera) error {
	close(p.entered)
	<-p.release
	return nil
}

// statusAdapter는 고정 모니터 상태를 돌려주는 테스트용 어댑터
type statusAdapter struct {
	status vms.Status
	err    error
}

func (a *statusAdapter) Provider() string { return vms.ProviderShinobi }

func (a *statusAdapter) TestConnection(ctx context.Context, server *database.VMSServer) (vms.TestResult, error) {
	return vms.TestResult{}, nil
}

func (a *statusAdapter) DiscoverMonitors(ctx context.Context, server *database.VMSServer) ([]vms.Monitor, error) {
	return nil, nil
}

func (a *statusAdapter) LiveStreamURLs(ctx context.Context, server *database.VMSServer, monitorID string) (vms.StreamURLs, error) {
	return vms.StreamURLs{}, nil
}

func (a *statusAdapter) MonitorStatus(ctx context.Context, server *database.VMSServer, monitorID string) (vms.Status, error) {
	return a.status, a.err
}

func (a *statusAdapter) RecordingCatalog(ctx context.Context, server *database.VMSServer, monitorID string, limit int) ([]vms.RecordingClip, error) {
	return nil, nil
}

type memoryRecorder struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *memoryRecorder) Record(event *audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *memoryRecorder) all() []*audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*audit.Event(nil), r.events...)
}

type memoryBroadcaster struct {
	mu        sync.Mutex
	published []status.StatusChange
}

func (b *memoryBroadcaster) Publish(companyID, event string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if change, ok := payload.(status.StatusChange); ok {
		b.published = append(b.published, change)
	}
}

type monitorFixture struct {
	monitor  *StatusMonitor
	cameras  *database.CameraRepository
	servers  *database.VMSServerRepository
	adapter  *statusAdapter
	recorder *memoryRecorder
}

func newMonitorFixture(t *testing.T, prober Prober, concurrency int) *monitorFixture {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cameras := database.NewCameraRepository(db, zap.NewNop())
	servers := database.NewVMSServerRepository(db, zap.NewNop())

	adapter := &statusAdapter{status: vms.StatusOnline}
	registry := vms.NewRegistry()
	registry.Register(adapter)

	recorder := &memoryRecorder{}
	tracker := status.NewTracker(status.TrackerConfig{
		Cameras:     cameras,
		Recorder:    recorder,
		Broadcaster: &memoryBroadcaster{},
		Logger:      zap.NewNop(),
	})

	return &monitorFixture{
		monitor: New(Config{
			Cameras:     cameras,
			Servers:     servers,
			Registry:    registry,
			Prober:      prober,
			Tracker:     tracker,
			Logger:      zap.NewNop(),
			IntervalSec: 3600, // 테스트는 RunOnce만 호출
			Concurrency: concurrency,
		}),
		cameras:  cameras,
		servers:  servers,
		adapter:  adapter,
		recorder: recorder,
	}
}

func (f *monitorFixture) seedServer(t *testing.T) {
	t.Helper()
	require.NoError(t, f.servers.Create(&database.VMSServer{
		ID: "srv-1", CompanyID: "acme", Provider: vms.ProviderShinobi,
		BaseURL: "http://10.0.0.5:8080", APIKey: "apikey123", GroupKey: "group456",
	}))
}

func (f *monitorFixture) directCamera(t *testing.T, id, companyID, currentStatus string) {
	t.Helper()
	require.NoError(t, f.cameras.Create(&database.Camera{
		ID: id, CompanyID: companyID, Status: currentStatus,
		StreamType: database.StreamTypeDirectRTSP, RTSPURL: "rtsp://10.0.0.20:554/stream",
	}))
}

func (f *monitorFixture) vmsCamera(t *testing.T, id, companyID, currentStatus, serverID string) {
	t.Helper()
	require.NoError(t, f.cameras.Create(&database.Camera{
		ID: id, CompanyID: companyID, Status: currentStatus,
		VMSProvider: vms.ProviderShinobi, VMSServerID: serverID, VMSMonitorID: "m1",
	}))
}

func (f *monitorFixture) storedStatus(t *testing.T, companyID, id string) string {
	t.Helper()
	camera, err := f.cameras.Get(companyID, id)
	require.NoError(t, err)
	return camera.Status
}

func TestStatusMonitor_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("DirectProbeSucceeds_Online", func(t *testing.T) {
		f := newMonitorFixture(t, &fakeProber{}, 1)
		f.directCamera(t, "cam-1", "acme", "offline")

		summary, err := f.monitor.RunOnce(ctx, Options{})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Checked)
		assert.Equal(t, 1, summary.Changed)
		assert.Zero(t, summary.Errors)
		assert.NotEmpty(t, summary.CorrelationID)
		assert.Equal(t, "online", f.storedStatus(t, "acme", "cam-1"))
	})

	t.Run("DirectProbeFails_OfflineWithDetail", func(t *testing.T) {
		f := newMonitorFixture(t, &fakeProber{err: errors.New("connection refused")}, 1)
		f.directCamera(t, "cam-1", "acme", "online")

		summary, err := f.monitor.RunOnce(ctx, Options{})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Changed)
		assert.Equal(t, "offline", f.storedStatus(t, "acme", "cam-1"))

		events := f.recorder.all()
		require.Len(t, events, 1)
		assert.Contains(t, events[0].Metadata["detail"], "RTSP probe failed")
		assert.Equal(t, summary.CorrelationID, events[0].CorrelationID)
	})

	t.Run("VMSStatusApplied", func(t *testing.T) {
		f := newMonitorFixture(t, &fakeProber{}, 1)
		f.seedServer(t)
		f.vmsCamera(t, "cam-1", "acme", "offline", "srv-1")
		f.adapter.status = vms.StatusOnline

		summary, err := f.monitor.RunOnce(ctx, Options{})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Changed)
		assert.Equal(t, "online", f.storedStatus(t, "acme", "cam-1"))
	})

	t.Run("MonitorGoneFromProvider_Offline", func(t *testing.T) {
		f := newMonitorFixture(t, &fakeProber{}, 1)
		f.seedServer(t)
		f.vmsCamera(t, "cam-1", "acme", "online", "srv-1")
		f.adapter.err = vms.ErrMonitorNotFound

		summary, err := f.monitor.RunOnce(ctx, Options{})
		require.NoError(t, err)
		assert.Equal(t, "offline", f.storedStatus(t, "acme", "cam-1"))
		assert.Zero(t, summary.Errors, "a deleted monitor is an answer, not a failure")
	})

	t.Run("ProviderQueryFails_ErrorStatus", func(t *testing.T) {
		f := newMonitorFixture(t, &fakeProber{}, 1)
		f.seedServer(t)
		f.vmsCamera(t, "cam-1", "acme", "online", "srv-1")
		f.adapter.err = errors.New("shinobi is down")

		_, err := f.monitor.RunOnce(ctx, Options{})
		require.NoError(t, err)
		assert.Equal(t, "error", f.storedStatus(t, "acme", "cam-1"))
	})

	t.Run("ServerRecordMissing_ErrorStatus", func(t *testing.T) {
		f := newMonitorFixture(t, &fakeProber{}, 1)
		f.vmsCamera(t, "cam-1", "acme", "online", "srv-404")

		_, err := f.monitor.RunOnce(ctx, Options{})
		require.NoError(t, err)
		assert.Equal(t, "error", f.storedStatus(t, "acme", "cam-1"))

		events := f.recorder.all()
		require.Len(t, events, 1)
		assert.Contains(t, events[0].Metadata["detail"], "VMS server not found")
	})

	t.Run("UnconfiguredCamera_Skipped", func(t *testing.T) {
		prober := &fakeProber{}
		f := newMonitorFixture(t, prober, 1)
		require.NoError(t, f.cameras.Create(&database.Camera{ID: "cam-1", CompanyID: "acme"}))

		summary, err := f.monitor.RunOnce(ctx, Options{})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Skipped)
		assert.Zero(t, summary.Checked)
		assert.Zero(t, prober.calls.Load())
	})

	t.Run("CompanyScoped_ChecksOneTenant", func(t *testing.T) {
		prober := &fakeProber{}
		f := newMonitorFixture(t, prober, 1)
		f.directCamera(t, "cam-a", "acme", "offline")
		f.directCamera(t, "cam-g", "globex", "offline")

		summary, err := f.monitor.RunOnce(ctx, Options{CompanyID: "acme"})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Checked)
		assert.Equal(t, int32(1), prober.calls.Load())
		assert.Equal(t, "online", f.storedStatus(t, "acme", "cam-a"))
		assert.Equal(t, "offline", f.storedStatus(t, "globex", "cam-g"))
	})

	t.Run("MixedOutcomesAggregate", func(t *testing.T) {
		f := newMonitorFixture(t, &fakeProber{}, 1)
		f.directCamera(t, "cam-1", "acme", "offline") // changed
		f.directCamera(t, "cam-2", "acme", "online")  // unchanged
		require.NoError(t, f.cameras.Create(&database.Camera{ID: "cam-3", CompanyID: "acme"})) // skipped

		summary, err := f.monitor.RunOnce(ctx, Options{})
		require.NoError(t, err)
		assert.Equal(t, 2, summary.Checked)
		assert.Equal(t, 1, summary.Changed)
		assert.Equal(t, 1, summary.Skipped)
		assert.Zero(t, summary.Errors)
	})

	t.Run("WorkerPoolCoversEveryCamera", func(t *testing.T) {
		prober := &fakeProber{}
		f := newMonitorFixture(t, prober, 3)
		for _, id := range []string{"cam-1", "cam-2", "cam-3", "cam-4", "cam-5"} {
			f.directCamera(t, id, "acme", "offline")
		}

		summary, err := f.monitor.RunOnce(ctx, Options{})
		require.NoError(t, err)
		assert.Equal(t, 5, summary.Checked)
		assert.Equal(t, 5, summary.Changed)
		assert.Equal(t, int32(5), prober.calls.Load())
	})
}

func TestStatusMonitor_SingleFlight(t *testing.T) {
	prober := &blockingProber{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newMonitorFixture(t, prober, 1)
	f.directCamera(t, "cam-1", "acme", "offline")

	done := make(chan Summary, 1)
	go func() {
		summary, err := f.monitor.RunOnce(context.Background(), Options{})
		assert.NoError(t, err)
		done <- summary
	}()

	<-prober.entered
	assert.True(t, f.monitor.Running())

	// 패스가 진행 중인 동안의 재진입은 어떤 카메라도 건드리지 않고 거부됨
	_, err := f.monitor.RunOnce(context.Background(), Options{})
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	close(prober.release)
	summary := <-done
	assert.Equal(t, 1, summary.Checked)
	assert.False(t, f.monitor.Running())
}
