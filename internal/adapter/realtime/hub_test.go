package realtime

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simaogato/tradejournal-backend/internal/domain"
)

func testHub(t *testing.T) (*Hub, func(userID uuid.UUID) *ws.Conn) {
	t.Helper()

	log := logrus.New()
	log.Out = io.Discard
	hub := NewHub(log)
	t.Cleanup(hub.Stop)

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		userID := uuid.MustParse(r.URL.Query().Get("user"))
		go func() { _ = hub.Serve(userID, conn) }()
	}))
	t.Cleanup(server.Close)

	dial := func(userID uuid.UUID) *ws.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "?user=" + userID.String()
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}
	return hub, dial
}

func waitForClientCount(hub *Hub, userID uuid.UUID, expected int) bool {
	for range 200 {
		if hub.ClientCount(userID) == expected {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func readEvent(t *testing.T, conn *ws.Conn) domain.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev domain.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func TestHub_DeliversOnlyToOwner(t *testing.T) {
	hub, dial := testHub(t)
	alice, bob := uuid.New(), uuid.New()

	a1 := dial(alice)
	a2 := dial(alice)
	b := dial(bob)
	require.True(t, waitForClientCount(hub, alice, 2))
	require.True(t, waitForClientCount(hub, bob, 1))

	ev, err := domain.NewEvent(domain.EventTradeCreated, alice, map[string]string{"symbol": "BTCUSDT"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, LocalPublisher{Hub: hub}.Publish(context.Background(), ev))

	for _, conn := range []*ws.Conn{a1, a2} {
		got := readEvent(t, conn)
		assert.Equal(t, domain.EventTradeCreated, got.Type)
		assert.Equal(t, alice, got.UserID)
	}

	require.NoError(t, b.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = b.ReadMessage()
	assert.Error(t, err, "bob receives nothing")
}

func TestHub_MaxConnectionsPerUser(t *testing.T) {
	hub, dial := testHub(t)
	userID := uuid.New()

	for i := 0; i < MaxConnsPerUser; i++ {
		dial(userID)
	}
	require.True(t, waitForClientCount(hub, userID, MaxConnsPerUser))

	extra := dial(userID)
	require.NoError(t, extra.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := extra.ReadMessage()
	assert.Error(t, err, "the extra connection is closed by the server")
	assert.Equal(t, MaxConnsPerUser, hub.ClientCount(userID))
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, dial := testHub(t)
	userID := uuid.New()

	conn := dial(userID)
	require.True(t, waitForClientCount(hub, userID, 1))

	require.NoError(t, conn.Close())
	assert.True(t, waitForClientCount(hub, userID, 0))
}

func TestHub_DeliverWithoutClients(t *testing.T) {
	log := logrus.New()
	log.Out = io.Discard
	hub := NewHub(log)
	defer hub.Stop()

	hub.Deliver(domain.Event{Type: domain.EventLevelUp, UserID: uuid.New()})
	assert.Equal(t, 0, hub.ClientCount(uuid.New()))
}
