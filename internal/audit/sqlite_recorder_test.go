package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/vmshub/internal/database"
)

func newRecorder(t *testing.T) *SQLiteRecorder {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteRecorder(db, zap.NewNop())
}

func TestSQLiteRecorder_Record(t *testing.T) {
	recorder := newRecorder(t)

	t.Run("FillsIDAndTimestamp", func(t *testing.T) {
		event := &Event{
			Action:     "camera.status_changed",
			CompanyID:  "acme",
			ResourceID: "cam-1",
		}
		require.NoError(t, recorder.Record(event))
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.CreatedAt.IsZero())
	})

	t.Run("ChangesAndMetadataRoundTrip", func(t *testing.T) {
		require.NoError(t, recorder.Record(&Event{
			Action:     "camera.status_changed",
			CompanyID:  "acme",
			ResourceID: "cam-2",
			Changes:    map[string]any{"status": map[string]any{"from": "offline", "to": "online"}},
			Metadata:   map[string]any{"source": "monitor", "detail": "probe ok"},
			CorrelationID: "run-42",
		}))

		events, err := recorder.ListByResource("acme", "cam-2")
		require.NoError(t, err)
		require.Len(t, events, 1)

		got := events[0]
		assert.Equal(t, "camera.status_changed", got.Action)
		assert.Equal(t, "run-42", got.CorrelationID)
		assert.Equal(t, "monitor", got.Metadata["source"])

		status, ok := got.Changes["status"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "offline", status["from"])
		assert.Equal(t, "online", status["to"])
	})

	t.Run("NilMapsStoredAsEmptyObjects", func(t *testing.T) {
		require.NoError(t, recorder.Record(&Event{
			Action:     "server.tested",
			CompanyID:  "acme",
			ResourceID: "srv-1",
		}))

		events, err := recorder.ListByResource("acme", "srv-1")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Empty(t, events[0].Changes)
		assert.Empty(t, events[0].Metadata)
	})
}

func TestSQLiteRecorder_ListByResource(t *testing.T) {
	recorder := newRecorder(t)

	at := func(minute int) time.Time {
		return time.Date(2026, 8, 25, 10, minute, 0, 0, time.UTC)
	}
	require.NoError(t, recorder.Record(&Event{
		ID: "e1", Action: "camera.status_changed", CompanyID: "acme", ResourceID: "cam-1", CreatedAt: at(0),
	}))
	require.NoError(t, recorder.Record(&Event{
		ID: "e2", Action: "camera.status_changed", CompanyID: "acme", ResourceID: "cam-1", CreatedAt: at(5),
	}))
	require.NoError(t, recorder.Record(&Event{
		ID: "e3", Action: "camera.status_changed", CompanyID: "globex", ResourceID: "cam-1", CreatedAt: at(3),
	}))

	t.Run("NewestFirst", func(t *testing.T) {
		events, err := recorder.ListByResource("acme", "cam-1")
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "e2", events[0].ID)
		assert.Equal(t, "e1", events[1].ID)
	})

	t.Run("TenantScoped", func(t *testing.T) {
		// globex의 cam-1 이벤트는 acme 조회에 섞이지 않음
		events, err := recorder.ListByResource("globex", "cam-1")
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "e3", events[0].ID)
	})

	t.Run("NoEvents_EmptyResult", func(t *testing.T) {
		events, err := recorder.ListByResource("acme", "cam-404")
		require.NoError(t, err)
		assert.Empty(t, events)
	})
}
