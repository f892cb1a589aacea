package database

import (
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// VMSServer는 테넌트별 VMS 서버 등록 정보를 나타냅니다.
// APIKey와 GroupKey는 자격증명이므로 GetWithCredentials를 통해서만 채워집니다.
type VMSServer struct {
	ID               string     `json:"id"`
	CompanyID        string     `json:"company_id"`
	Name             string     `json:"name"`
	Provider         string     `json:"provider"`
	BaseURL          string     `json:"base_url"`
	PublicBaseURL    string     `json:"public_base_url,omitempty"`
	APIKey           string     `json:"-"`
	GroupKey         string     `json:"-"`
	ConnectionStatus string     `json:"connection_status"`
	LastError        string     `json:"last_error,omitempty"`
	LastCheckedAt    *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// VMSServerRepository는 VMS 서버 데이터 액세스 레이어입니다
type VMSServerRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewVMSServerRepository는 새로운 VMSServerRepository를 생성합니다
func NewVMSServerRepository(db *DB, logger *zap.Logger) *VMSServerRepository {
	return &VMSServerRepository{
		db:     db,
		logger: logger,
	}
}

// Create는 새로운 VMS 서버를 등록합니다
func (r *VMSServerRepository) Create(server *VMSServer) error {
	query := `
		INSERT INTO vms_servers (id, company_id, name, provider, base_url, public_base_url,
			api_key, group_key, connection_status, last_error, last_checked_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	server.CreatedAt = now
	server.UpdatedAt = now
	if server.ConnectionStatus == "" {
		server.ConnectionStatus = "unknown"
	}

	_, err := r.db.Conn().Exec(
		query,
		server.ID,
		server.CompanyID,
		server.Name,
		server.Provider,
		server.BaseURL,
		server.PublicBaseURL,
		server.APIKey,
		server.GroupKey,
		server.ConnectionStatus,
		server.LastError,
		nullableTime(server.LastCheckedAt),
		server.CreatedAt,
		server.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create vms server: %w", err)
	}

	r.logger.Info("VMS server created",
		zap.String("id", server.ID),
		zap.String("company_id", server.CompanyID),
		zap.String("provider", server.Provider),
	)

	return nil
}

// Get은 자격증명을 제외한 VMS 서버 정보를 조회합니다
func (r *VMSServerRepository) Get(companyID, id string) (*VMSServer, error) {
	query := `
		SELECT id, company_id, name, provider, base_url, public_base_url,
			connection_status, last_error, last_checked_at, created_at, updated_at
		FROM vms_servers
		WHERE id = ? AND company_id = ?
	`

	server := &VMSServer{}
	var lastChecked sql.NullTime

	err := r.db.Conn().QueryRow(query, id, companyID).Scan(
		&server.ID,
		&server.CompanyID,
		&server.Name,
		&server.Provider,
		&server.BaseURL,
		&server.PublicBaseURL,
		&server.ConnectionStatus,
		&server.LastError,
		&lastChecked,
		&server.CreatedAt,
		&server.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("vms server %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vms server: %w", err)
	}

	if lastChecked.Valid {
		server.LastCheckedAt = &lastChecked.Time
	}

	return server, nil
}

// GetWithCredentials는 프로바이더 호출에 필요한 자격증명을 포함해 조회합니다.
// 어댑터와 상태 점검 경로에서만 사용해야 합니다.
func (r *VMSServerRepository) GetWithCredentials(companyID, id string) (*VMSServer, error) {
	server, err := r.Get(companyID, id)
	if err != nil {
		return nil, err
	}

	query := `SELECT api_key, group_key FROM vms_servers WHERE id = ? AND company_id = ?`
	err = r.db.Conn().QueryRow(query, id, companyID).Scan(&server.APIKey, &server.GroupKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get vms server credentials: %w", err)
	}

	return server, nil
}

// ListByCompany는 한 테넌트의 모든 VMS 서버를 자격증명 없이 조회합니다
func (r *VMSServerRepository) ListByCompany(companyID string) ([]*VMSServer, error) {
	query := `
		SELECT id, company_id, name, provider, base_url, public_base_url,
			connection_status, last_error, last_checked_at, created_at, updated_at
		FROM vms_servers
		WHERE company_id = ?
		ORDER BY created_at
	`

	rows, err := r.db.Conn().Query(query, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query vms servers: %w", err)
	}
	defer rows.Close()

	var servers []*VMSServer
	for rows.Next() {
		server := &VMSServer{}
		var lastChecked sql.NullTime

		err := rows.Scan(
			&server.ID,
			&server.CompanyID,
			&server.Name,
			&server.Provider,
			&server.BaseURL,
			&server.PublicBaseURL,
			&server.ConnectionStatus,
			&server.LastError,
			&lastChecked,
			&server.CreatedAt,
			&server.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vms server: %w", err)
		}

		if lastChecked.Valid {
			server.LastCheckedAt = &lastChecked.Time
		}
		servers = append(servers, server)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vms servers: %w", err)
	}

	return servers, nil
}

// UpdateDiagnostics는 연결 점검 결과를 서버 레코드에 반영합니다
func (r *VMSServerRepository) UpdateDiagnostics(companyID, id, status, lastError string, checkedAt time.Time) error {
	query := `
		UPDATE vms_servers
		SET connection_status = ?, last_error = ?, last_checked_at = ?, updated_at = ?
		WHERE id = ? AND company_id = ?
	`

	result, err := r.db.Conn().Exec(query, status, lastError, checkedAt, time.Now(), id, companyID)
	if err != nil {
		return fmt.Errorf("failed to update vms server diagnostics: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("vms server %s: %w", id, ErrNotFound)
	}

	return nil
}
