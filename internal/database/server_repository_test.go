package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func seedServer(t *testing.T, repo *VMSServerRepository) *VMSServer {
	t.Helper()
	server := &VMSServer{
		ID:            "srv-1",
		CompanyID:     "acme",
		Name:          "HQ Shinobi",
		Provider:      "shinobi",
		BaseURL:       "http://10.0.0.5:8080",
		PublicBaseURL: "https://vms.example.com",
		APIKey:        "apikey123",
		GroupKey:      "group456",
	}
	require.NoError(t, repo.Create(server))
	return server
}

func TestVMSServerRepository_Get(t *testing.T) {
	repo := NewVMSServerRepository(newTestDB(t), zap.NewNop())
	seedServer(t, repo)

	t.Run("CredentialsAreWithheld", func(t *testing.T) {
		got, err := repo.Get("acme", "srv-1")
		require.NoError(t, err)
		assert.Equal(t, "HQ Shinobi", got.Name)
		assert.Equal(t, "unknown", got.ConnectionStatus)
		assert.Empty(t, got.APIKey, "Get must not load credentials")
		assert.Empty(t, got.GroupKey, "Get must not load credentials")
	})

	t.Run("GetWithCredentials_LoadsKeys", func(t *testing.T) {
		got, err := repo.GetWithCredentials("acme", "srv-1")
		require.NoError(t, err)
		assert.Equal(t, "apikey123", got.APIKey)
		assert.Equal(t, "group456", got.GroupKey)
	})

	t.Run("WrongTenant_NotFound", func(t *testing.T) {
		_, err := repo.Get("globex", "srv-1")
		assert.ErrorIs(t, err, ErrNotFound)

		_, err = repo.GetWithCredentials("globex", "srv-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestVMSServerRepository_ListByCompany(t *testing.T) {
	repo := NewVMSServerRepository(newTestDB(t), zap.NewNop())
	seedServer(t, repo)
	require.NoError(t, repo.Create(&VMSServer{
		ID: "srv-2", CompanyID: "globex", Provider: "shinobi", BaseURL: "http://10.0.1.5:8080",
	}))

	servers, err := repo.ListByCompany("acme")
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "srv-1", servers[0].ID)
	assert.Empty(t, servers[0].APIKey)
}

func TestVMSServerRepository_UpdateDiagnostics(t *testing.T) {
	repo := NewVMSServerRepository(newTestDB(t), zap.NewNop())
	seedServer(t, repo)

	t.Run("WritesStatusErrorAndTimestamp", func(t *testing.T) {
		checkedAt := time.Date(2026, 8, 25, 14, 0, 0, 0, time.UTC)
		err := repo.UpdateDiagnostics("acme", "srv-1", "failed", "connection refused", checkedAt)
		require.NoError(t, err)

		got, err := repo.Get("acme", "srv-1")
		require.NoError(t, err)
		assert.Equal(t, "failed", got.ConnectionStatus)
		assert.Equal(t, "connection refused", got.LastError)
		require.NotNil(t, got.LastCheckedAt)
		assert.Equal(t, checkedAt.Unix(), got.LastCheckedAt.Unix())
	})

	t.Run("RecoveryClearsLastError", func(t *testing.T) {
		err := repo.UpdateDiagnostics("acme", "srv-1", "connected", "", time.Now())
		require.NoError(t, err)

		got, err := repo.Get("acme", "srv-1")
		require.NoError(t, err)
		assert.Equal(t, "connected", got.ConnectionStatus)
		assert.Empty(t, got.LastError)
	})

	t.Run("UnknownServer_NotFound", func(t *testing.T) {
		err := repo.UpdateDiagnostics("acme", "srv-404", "connected", "", time.Now())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
