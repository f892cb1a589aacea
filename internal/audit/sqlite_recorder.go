package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yourusername/vmshub/internal/database"
	"go.uber.org/zap"
)

// SQLiteRecorder는 감사 이벤트를 audit_events 테이블에 기록합니다
type SQLiteRecorder struct {
	db     *database.DB
	logger *zap.Logger
}

// NewSQLiteRecorder는 새로운 SQLiteRecorder를 생성합니다
func NewSQLiteRecorder(db *database.DB, logger *zap.Logger) *SQLiteRecorder {
	return &SQLiteRecorder{
		db:     db,
		logger: logger,
	}
}

// Record는 감사 이벤트를 저장합니다
func (r *SQLiteRecorder) Record(event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	changes, err := json.Marshal(orEmpty(event.Changes))
	if err != nil {
		return fmt.Errorf("failed to marshal changes: %w", err)
	}

	metadata, err := json.Marshal(orEmpty(event.Metadata))
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO audit_events (id, action, company_id, resource_id, user_id, changes, metadata, correlation_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Conn().Exec(
		query,
		event.ID,
		event.Action,
		event.CompanyID,
		event.ResourceID,
		event.UserID,
		string(changes),
		string(metadata),
		event.CorrelationID,
		event.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	r.logger.Debug("Audit event recorded",
		zap.String("id", event.ID),
		zap.String("action", event.Action),
		zap.String("resource_id", event.ResourceID),
	)

	return nil
}

// ListByResource는 한 리소스의 감사 이벤트를 최신순으로 조회합니다
func (r *SQLiteRecorder) ListByResource(companyID, resourceID string) ([]*Event, error) {
	query := `
		SELECT id, action, company_id, resource_id, user_id, changes, metadata, correlation_id, created_at
		FROM audit_events
		WHERE company_id = ? AND resource_id = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.Conn().Query(query, companyID, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event := &Event{}
		var changes, metadata string

		err := rows.Scan(
			&event.ID,
			&event.Action,
			&event.CompanyID,
			&event.ResourceID,
			&event.UserID,
			&changes,
			&metadata,
			&event.CorrelationID,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}

		if err := json.Unmarshal([]byte(changes), &event.Changes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
		}
		if err := json.Unmarshal([]byte(metadata), &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}

	return events, nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
