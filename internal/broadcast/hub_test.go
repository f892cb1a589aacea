package broadcast

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newHubServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(HubConfig{Logger: zap.NewNop()})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r, r.URL.Query().Get("company_id"))
	}))
	t.Cleanup(server.Close)
	return hub, server
}

func dialSubscriber(t *testing.T, serverURL, companyID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/?company_id=" + companyID
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(data, &envelope))
	return envelope
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return hub.ClientCount() == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_Publish(t *testing.T) {
	t.Run("EnvelopeCarriesEventAndPayload", func(t *testing.T) {
		hub, server := newHubServer(t)
		conn := dialSubscriber(t, server.URL, "acme")
		waitForClients(t, hub, 1)

		hub.Publish("acme", "camera.status", map[string]any{"cameraId": "cam-1", "newStatus": "online"})

		envelope := readEnvelope(t, conn)
		assert.Equal(t, "camera.status", envelope.Event)
		assert.False(t, envelope.TS.IsZero())

		data, ok := envelope.Data.(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "cam-1", data["cameraId"])
		assert.Equal(t, "online", data["newStatus"])
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		hub, server := newHubServer(t)
		acme := dialSubscriber(t, server.URL, "acme")
		globex := dialSubscriber(t, server.URL, "globex")
		waitForClients(t, hub, 2)

		hub.Publish("acme", "camera.status", map[string]any{"cameraId": "cam-1"})

		envelope := readEnvelope(t, acme)
		assert.Equal(t, "camera.status", envelope.Event)

		// globex 구독자에게는 아무 것도 도착하지 않아야 함
		require.NoError(t, globex.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
		_, _, err := globex.ReadMessage()
		assert.Error(t, err, "cross-tenant events must not leak")
	})

	t.Run("NoSubscribers_PublishIsANoOp", func(t *testing.T) {
		hub, _ := newHubServer(t)
		hub.Publish("acme", "camera.status", map[string]any{"cameraId": "cam-1"})
		assert.Zero(t, hub.ClientCount())
	})
}

func TestHub_Lifecycle(t *testing.T) {
	t.Run("DisconnectUnregisters", func(t *testing.T) {
		hub, server := newHubServer(t)
		conn := dialSubscriber(t, server.URL, "acme")
		waitForClients(t, hub, 1)

		conn.Close()
		waitForClients(t, hub, 0)
	})

	t.Run("CloseDropsEveryConnection", func(t *testing.T) {
		hub, server := newHubServer(t)
		conn := dialSubscriber(t, server.URL, "acme")
		dialSubscriber(t, server.URL, "globex")
		waitForClients(t, hub, 2)

		hub.Close()
		assert.Zero(t, hub.ClientCount())

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err)
	})
}
