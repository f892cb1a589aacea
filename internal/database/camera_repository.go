package database

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// 스트림 구성 종류. VMS 연동과 직결 RTSP는 상호 배타적입니다.
const (
	StreamTypeVMS        = "vms"
	StreamTypeDirectRTSP = "direct-rtsp"
)

// Camera는 카메라 정보를 나타냅니다
type Camera struct {
	ID            string     `json:"id"`
	CompanyID     string     `json:"company_id"`
	Name          string     `json:"name"`
	Status        string     `json:"status"`
	VMSProvider   string     `json:"vms_provider,omitempty"`
	VMSServerID   string     `json:"vms_server_id,omitempty"`
	VMSMonitorID  string     `json:"vms_monitor_id,omitempty"`
	VMSLastSyncAt *time.Time `json:"vms_last_sync_at,omitempty"`
	StreamType    string     `json:"stream_type,omitempty"`
	RTSPURL       string     `json:"-"`
	RTSPTransport string     `json:"-"`
	RTSPUsername  string     `json:"-"`
	RTSPPassword  string     `json:"-"`
	LastSeen      *time.Time `json:"last_seen,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HasVMSLink는 카메라가 VMS 모니터와 연결되어 있는지 반환합니다
func (c *Camera) HasVMSLink() bool {
	return c.VMSServerID != "" && c.VMSMonitorID != ""
}

// IsDirectRTSP는 카메라가 직결 RTSP 스트림으로 구성되어 있는지 반환합니다
func (c *Camera) IsDirectRTSP() bool {
	return c.StreamType == StreamTypeDirectRTSP
}

const cameraColumns = `id, company_id, name, status, vms_provider, vms_server_id, vms_monitor_id,
		vms_last_sync_at, stream_type, rtsp_url, rtsp_transport, rtsp_username, rtsp_password,
		last_seen, created_at, updated_at`

// CameraRepository는 카메라 데이터 액세스 레이어입니다
type CameraRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCameraRepository는 새로운 CameraRepository를 생성합니다
func NewCameraRepository(db *DB, logger *zap.Logger) *CameraRepository {
	return &CameraRepository{
		db:     db,
		logger: logger,
	}
}

// Create는 새로운 카메라를 생성합니다
// VMS 연동과 직결 RTSP가 동시에 설정된 카메라는 거부합니다
func (r *CameraRepository) Create(camera *Camera) error {
	if camera.StreamType == StreamTypeDirectRTSP && (camera.VMSServerID != "" || camera.VMSMonitorID != "") {
		return fmt.Errorf("camera %s: direct-rtsp camera cannot carry a vms link", camera.ID)
	}

	query := `
		INSERT INTO cameras (id, company_id, name, status, vms_provider, vms_server_id, vms_monitor_id,
			vms_last_sync_at, stream_type, rtsp_url, rtsp_transport, rtsp_username, rtsp_password,
			last_seen, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	camera.CreatedAt = now
	camera.UpdatedAt = now
	if camera.Status == "" {
		camera.Status = "offline"
	}
	if camera.RTSPTransport == "" {
		camera.RTSPTransport = "tcp"
	}

	_, err := r.db.Conn().Exec(
		query,
		camera.ID,
		camera.CompanyID,
		camera.Name,
		camera.Status,
		camera.VMSProvider,
		camera.VMSServerID,
		camera.VMSMonitorID,
		nullableTime(camera.VMSLastSyncAt),
		camera.StreamType,
		camera.RTSPURL,
		camera.RTSPTransport,
		camera.RTSPUsername,
		camera.RTSPPassword,
		nullableTime(camera.LastSeen),
		camera.CreatedAt,
		camera.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create camera: %w", err)
	}

	r.logger.Info("Camera created",
		zap.String("id", camera.ID),
		zap.String("company_id", camera.CompanyID),
	)

	return nil
}

// Get은 테넌트 범위 내에서 ID로 카메라를 조회합니다
func (r *CameraRepository) Get(companyID, id string) (*Camera, error) {
	query := `SELECT ` + cameraColumns + ` FROM cameras WHERE id = ? AND company_id = ?`

	camera, err := scanCamera(r.db.Conn().QueryRow(query, id, companyID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("camera %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get camera: %w", err)
	}

	return camera, nil
}

// ListByCompany는 한 테넌트의 모든 카메라를 조회합니다
func (r *CameraRepository) ListByCompany(companyID string) ([]*Camera, error) {
	query := `SELECT ` + cameraColumns + ` FROM cameras WHERE company_id = ? ORDER BY created_at`

	rows, err := r.db.Conn().Query(query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cameras: %w", err)
	}
	defer rows.Close()

	return collectCameras(rows)
}

// ListAll은 전체 테넌트의 카메라를 조회합니다 (전체 상태 점검 패스용)
func (r *CameraRepository) ListAll() ([]*Camera, error) {
	query := `SELECT ` + cameraColumns + ` FROM cameras ORDER BY company_id, created_at`

	rows, err := r.db.Conn().Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query cameras: %w", err)
	}
	defer rows.Close()

	return collectCameras(rows)
}

// UpdateStatusIf는 현재 상태가 newStatus와 다를 때에만 상태를 기록합니다.
// 조건부 갱신이므로 동시 기록자 중 실제로 전이를 일으킨 쪽만 true를 받습니다.
func (r *CameraRepository) UpdateStatusIf(companyID, id, newStatus string, lastSeen *time.Time) (bool, error) {
	query := `
		UPDATE cameras
		SET status = ?, last_seen = COALESCE(?, last_seen), updated_at = ?
		WHERE id = ? AND company_id = ? AND status != ?
	`

	result, err := r.db.Conn().Exec(query, newStatus, nullableTime(lastSeen), time.Now(), id, companyID, newStatus)
	if err != nil {
		return false, fmt.Errorf("failed to update camera status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// TouchVMSSync는 특정 VMS 서버에 연결된 카메라들의 동기화 시각을 갱신합니다
func (r *CameraRepository) TouchVMSSync(companyID, serverID string, at time.Time) error {
	query := `
		UPDATE cameras
		SET vms_last_sync_at = ?, updated_at = ?
		WHERE company_id = ? AND vms_server_id = ?
	`

	if _, err := r.db.Conn().Exec(query, at, time.Now(), companyID, serverID); err != nil {
		return fmt.Errorf("failed to touch vms sync: %w", err)
	}

	return nil
}

func collectCameras(rows *sql.Rows) ([]*Camera, error) {
	var cameras []*Camera
	for rows.Next() {
		camera, err := scanCamera(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan camera: %w", err)
		}
		cameras = append(cameras, camera)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating cameras: %w", err)
	}

	return cameras, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCamera(row rowScanner) (*Camera, error) {
	camera := &Camera{}
	var vmsLastSync, lastSeen sql.NullTime

	err := row.Scan(
		&camera.ID,
		&camera.CompanyID,
		&camera.Name,
		&camera.Status,
		&camera.VMSProvider,
		&camera.VMSServerID,
		&camera.VMSMonitorID,
		&vmsLastSync,
		&camera.StreamType,
		&camera.RTSPURL,
		&camera.RTSPTransport,
		&camera.RTSPUsername,
		&camera.RTSPPassword,
		&lastSeen,
		&camera.CreatedAt,
		&camera.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if vmsLastSync.Valid {
		camera.VMSLastSyncAt = &vmsLastSync.Time
	}
	if lastSeen.Valid {
		camera.LastSeen = &lastSeen.Time
	}

	return camera, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
