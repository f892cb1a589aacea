package status

import (
	"time"

	"github.com/yourusername/vmshub/internal/audit"
	"github.com/yourusername/vmshub/internal/database"
	"github.com/yourusername/vmshub/internal/vms"
	"go.uber.org/zap"
)

// Transition reasons carried into audit records and broadcast events.
const (
	ReasonScheduler     = "scheduler"
	ReasonStreamResolve = "stream-resolve"
)

// ActionStatusChanged is the audit action of a camera status transition.
const ActionStatusChanged = "camera.status_changed"

// EventCameraStatus is the broadcast event name of a status transition.
const EventCameraStatus = "camera.status"

// Broadcaster delivers an event to one tenant's subscribers
type Broadcaster interface {
	Publish(companyID, event string, payload any)
}

// StatusChange is the broadcast payload of a camera status transition
type StatusChange struct {
	CameraID       string    `json:"cameraId"`
	CompanyID      string    `json:"companyId"`
	PreviousStatus string    `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	CheckedAt      time.Time `json:"checkedAt"`
	Reason         string    `json:"reason"`
}

// Tracker applies camera status transitions. The write is conditional on
// the stored status still differing from the new one, so when several
// writers race on the same transition exactly one of them emits the
// audit record and broadcast event.
type Tracker struct {
	cameras     *database.CameraRepository
	recorder    audit.Recorder
	broadcaster Broadcaster
	logger      *zap.Logger
}

// TrackerConfig holds the configuration for Tracker
type TrackerConfig struct {
	Cameras     *database.CameraRepository
	Recorder    audit.Recorder
	Broadcaster Broadcaster
	Logger      *zap.Logger
}

// NewTracker creates a new status Tracker
func NewTracker(config TrackerConfig) *Tracker {
	return &Tracker{
		cameras:     config.Cameras,
		recorder:    config.Recorder,
		broadcaster: config.Broadcaster,
		logger:      config.Logger,
	}
}

// Transition records a derived camera status. Returns true when this call
// won the conditional write and emitted the transition; false when the
// status already matched or a concurrent writer got there first.
// Audit and broadcast failures are logged, never propagated: emission is
// fire-and-forget once the write has landed.
func (t *Tracker) Transition(camera *database.Camera, newStatus vms.Status, checkedAt time.Time, reason, detail, correlationID string) (bool, error) {
	previous := camera.Status
	if previous == string(newStatus) {
		// 상태가 같으면 아무 것도 기록하지 않음 (멱등 no-op)
		return false, nil
	}

	var lastSeen *time.Time
	if newStatus == vms.StatusOnline {
		lastSeen = &checkedAt
	}

	changed, err := t.cameras.UpdateStatusIf(camera.CompanyID, camera.ID, string(newStatus), lastSeen)
	if err != nil {
		return false, err
	}
	if !changed {
		// 동시 기록자에게 경합에서 밀림: 이벤트를 중복 발행하지 않음
		t.logger.Debug("Status transition lost race",
			zap.String("camera_id", camera.ID),
			zap.String("new_status", string(newStatus)),
		)
		return false, nil
	}

	camera.Status = string(newStatus)

	t.emit(camera, previous, string(newStatus), checkedAt, reason, detail, correlationID)

	t.logger.Info("Camera status changed",
		zap.String("camera_id", camera.ID),
		zap.String("company_id", camera.CompanyID),
		zap.String("from", previous),
		zap.String("to", string(newStatus)),
		zap.String("reason", reason),
	)

	return true, nil
}

func (t *Tracker) emit(camera *database.Camera, previous, next string, checkedAt time.Time, reason, detail, correlationID string) {
	metadata := map[string]any{
		"reason":     reason,
		"checked_at": checkedAt,
	}
	if detail != "" {
		metadata["detail"] = detail
	}

	err := t.recorder.Record(&audit.Event{
		Action:     ActionStatusChanged,
		CompanyID:  camera.CompanyID,
		ResourceID: camera.ID,
		Changes: map[string]any{
			"from": previous,
			"to":   next,
		},
		Metadata:      metadata,
		CorrelationID: correlationID,
	})
	if err != nil {
		t.logger.Error("Failed to record status audit event",
			zap.String("camera_id", camera.ID),
			zap.Error(err),
		)
	}

	t.broadcaster.Publish(camera.CompanyID, EventCameraStatus, StatusChange{
		CameraID:       camera.ID,
		CompanyID:      camera.CompanyID,
		PreviousStatus: previous,
		NewStatus:      next,
		CheckedAt:      checkedAt,
		Reason:         reason,
	})
}
