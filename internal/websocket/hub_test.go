package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thinkora-client/internal/event"
	"thinkora-client/internal/model"
)

type staticSessions struct{ snap model.Snapshot }

func (s staticSessions) Snapshot() model.Snapshot { return s.snap }

func readEvent(t *testing.T, conn *websocket.Conn) event.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var e event.Event
	require.NoError(t, json.Unmarshal(data, &e))
	return e
}

func TestHubStreamsSnapshots(t *testing.T) {
	bus := event.NewBus()
	hub := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	sessions := staticSessions{snap: model.Snapshot{State: model.StateAuthenticated, User: &model.UserProfile{Username: "sam"}}}
	srv := httptest.NewServer(Handler(hub, sessions, []string{"http://localhost:5173"}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	initial := readEvent(t, conn)
	assert.Equal(t, event.TypeSessionChanged, initial.Type)
	assert.Equal(t, model.StateAuthenticated, initial.Snapshot.State)
	assert.Equal(t, "sam", initial.Snapshot.User.Username)

	// The initial frame is sent by writePump, which starts only after the
	// hub registered the client, so this publish cannot be missed.
	bus.Publish(event.New(event.TypeSessionExpired, model.Snapshot{State: model.StateExpired}))

	next := readEvent(t, conn)
	assert.Equal(t, event.TypeSessionExpired, next.Type)
	assert.Equal(t, model.StateExpired, next.Snapshot.State)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://localhost:5173"})

	req := httptest.NewRequest("GET", "/session/ws", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://localhost:5173")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker([]string{"*"})(req))
}
