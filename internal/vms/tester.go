package vms

import (
	"context"
	"time"

	"github.com/yourusername/vmshub/internal/database"
	"go.uber.org/zap"
)

// ConnectionTester runs provider probes on behalf of operators and writes
// the outcome back onto the server record, so the last known connection
// state survives the request that produced it.
type ConnectionTester struct {
	servers  *database.VMSServerRepository
	cameras  *database.CameraRepository
	registry *Registry
	logger   *zap.Logger
}

// TesterConfig holds the configuration for ConnectionTester
type TesterConfig struct {
	Servers  *database.VMSServerRepository
	Cameras  *database.CameraRepository
	Registry *Registry
	Logger   *zap.Logger
}

// NewConnectionTester creates a new ConnectionTester
func NewConnectionTester(config TesterConfig) *ConnectionTester {
	return &ConnectionTester{
		servers:  config.Servers,
		cameras:  config.Cameras,
		registry: config.Registry,
		logger:   config.Logger,
	}
}

// TestServer probes a VMS server and records the diagnostic outcome.
// A failed probe is a successful test: the error surfaces inside the
// result, not as a Go error. Errors are reserved for missing records
// and storage trouble.
func (t *ConnectionTester) TestServer(ctx context.Context, companyID, serverID string) (TestResult, error) {
	server, err := t.servers.GetWithCredentials(companyID, serverID)
	if err != nil {
		return TestResult{}, err
	}

	adapter := t.registry.Get(server.Provider)
	result, probeErr := adapter.TestConnection(ctx, server)
	if probeErr != nil {
		result = TestResult{Success: false, Message: probeErr.Error()}
	}

	t.writeDiagnostics(companyID, serverID, result)

	return result, nil
}

// DiscoverMonitors lists the server's monitors, recording connection
// diagnostics and touching the sync timestamp of linked cameras.
func (t *ConnectionTester) DiscoverMonitors(ctx context.Context, companyID, serverID string) ([]Monitor, error) {
	server, err := t.servers.GetWithCredentials(companyID, serverID)
	if err != nil {
		return nil, err
	}

	adapter := t.registry.Get(server.Provider)
	monitors, err := adapter.DiscoverMonitors(ctx, server)
	if err != nil {
		t.writeDiagnostics(companyID, serverID, TestResult{Success: false, Message: err.Error()})
		return nil, err
	}

	t.writeDiagnostics(companyID, serverID, TestResult{Success: true, MonitorCount: len(monitors)})

	if err := t.cameras.TouchVMSSync(companyID, serverID, time.Now()); err != nil {
		// 진단용 타임스탬프 갱신 실패는 디스커버리 결과를 막지 않음
		t.logger.Warn("Failed to touch camera vms sync",
			zap.String("server_id", serverID),
			zap.Error(err),
		)
	}

	return monitors, nil
}

func (t *ConnectionTester) writeDiagnostics(companyID, serverID string, result TestResult) {
	status := ConnectionStatusConnected
	if !result.Success {
		status = ConnectionStatusFailed
	}

	if err := t.servers.UpdateDiagnostics(companyID, serverID, status, result.Message, time.Now()); err != nil {
		t.logger.Warn("Failed to write server diagnostics",
			zap.String("server_id", serverID),
			zap.Error(err),
		)
		return
	}

	t.logger.Info("VMS server diagnostics updated",
		zap.String("server_id", serverID),
		zap.String("connection_status", status),
	)
}
