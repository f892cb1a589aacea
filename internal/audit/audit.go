package audit

import "time"

// Event는 감사 로그 한 건을 나타냅니다. Changes와 Metadata는
// 저장 시 JSON으로 직렬화됩니다.
type Event struct {
	ID            string         `json:"id"`
	Action        string         `json:"action"`
	CompanyID     string         `json:"company_id"`
	ResourceID    string         `json:"resource_id"`
	UserID        string         `json:"user_id,omitempty"`
	Changes       map[string]any `json:"changes,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Recorder는 감사 이벤트 싱크입니다. 기록 실패가 호출자의 작업을
// 중단시켜서는 안 되므로 호출측은 에러를 로그로만 처리합니다.
type Recorder interface {
	Record(event *Event) error
}
