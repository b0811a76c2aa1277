package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trackvault/core/auth"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialEvents(t *testing.T, srv *httptest.Server, userID int64) *websocket.Conn {
	t.Helper()
	token, err := auth.GenerateToken(userID, "tester")
	require.NoError(t, err)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestEventsDeliveredToOwnerOnly(t *testing.T) {
	auth.SetSecret("test-secret")
	hub := NewEventHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleEvents))
	defer srv.Close()

	owner := dialEvents(t, srv, 1)
	other := dialEvents(t, srv, 2)

	// 等连接登记完成再广播
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == 2
	}, time.Second, 10*time.Millisecond)

	hub.Broadcast(1, Event{Type: EventTrackReady, TrackID: 42, AlbumID: 7})

	owner.SetReadDeadline(time.Now().Add(time.Second))
	var evt Event
	require.NoError(t, owner.ReadJSON(&evt))
	assert.Equal(t, EventTrackReady, evt.Type)
	assert.Equal(t, int64(42), evt.TrackID)
	assert.Equal(t, int64(7), evt.AlbumID)
	assert.NotZero(t, evt.Timestamp)

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var leaked Event
	err := other.ReadJSON(&leaked)
	require.Error(t, err)
	assert.True(t, websocket.IsUnexpectedCloseError(err) || strings.Contains(err.Error(), "timeout"))
}

func TestEventsRejectMissingToken(t *testing.T) {
	auth.SetSecret("test-secret")
	hub := NewEventHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleEvents))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEventsSlowClientDoesNotBlockBroadcast(t *testing.T) {
	auth.SetSecret("test-secret")
	hub := NewEventHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleEvents))
	defer srv.Close()

	dialEvents(t, srv, 1)
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.clients) == 1
	}, time.Second, 10*time.Millisecond)

	// 远超发送缓冲的事件数也必须立刻返回
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Broadcast(1, Event{Type: EventPlaylistUpdated, AlbumID: 7})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}
