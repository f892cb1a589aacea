package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrNotFound는 조회 대상 레코드가 없을 때 반환되는 센티널 에러
var ErrNotFound = errors.New("record not found")

// DB는 데이터베이스 연결을 관리합니다
type DB struct {
	conn   *sql.DB
	logger *zap.Logger
}

// New는 새로운 데이터베이스 연결을 생성합니다
func New(dbPath string, logger *zap.Logger) (*DB, error) {
	// 데이터베이스 디렉토리 생성
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// SQLite 연결 열기
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 연결 테스트
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{
		conn:   conn,
		logger: logger,
	}

	// 테이블 초기화
	if err := db.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("Database initialized successfully",
		zap.String("path", dbPath),
	)

	return db, nil
}

// migrate는 데이터베이스 스키마를 초기화합니다
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cameras (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'offline',
		vms_provider TEXT NOT NULL DEFAULT '',
		vms_server_id TEXT NOT NULL DEFAULT '',
		vms_monitor_id TEXT NOT NULL DEFAULT '',
		vms_last_sync_at TIMESTAMP,
		stream_type TEXT NOT NULL DEFAULT '',
		rtsp_url TEXT NOT NULL DEFAULT '',
		rtsp_transport TEXT NOT NULL DEFAULT 'tcp',
		rtsp_username TEXT NOT NULL DEFAULT '',
		rtsp_password TEXT NOT NULL DEFAULT '',
		last_seen TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_cameras_company ON cameras(company_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_cameras_vms_monitor
		ON cameras(company_id, vms_server_id, vms_monitor_id)
		WHERE vms_server_id != '' AND vms_monitor_id != '';

	CREATE TABLE IF NOT EXISTS vms_servers (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		base_url TEXT NOT NULL,
		public_base_url TEXT NOT NULL DEFAULT '',
		api_key TEXT NOT NULL DEFAULT '',
		group_key TEXT NOT NULL DEFAULT '',
		connection_status TEXT NOT NULL DEFAULT 'unknown',
		last_error TEXT NOT NULL DEFAULT '',
		last_checked_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_vms_servers_company ON vms_servers(company_id);

	CREATE TABLE IF NOT EXISTS audit_events (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		company_id TEXT NOT NULL DEFAULT '',
		resource_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		changes TEXT NOT NULL DEFAULT '{}',
		metadata TEXT NOT NULL DEFAULT '{}',
		correlation_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_audit_events_resource ON audit_events(resource_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_audit_events_company ON audit_events(company_id, created_at);
	`

	if _, err := db.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	db.logger.Info("Database schema migrated successfully")
	return nil
}

// Close는 데이터베이스 연결을 닫습니다
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn은 기본 SQL 연결을 반환합니다
func (db *DB) Conn() *sql.DB {
	return db.conn
}
