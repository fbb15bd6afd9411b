package daemon

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialPresence(t *testing.T, server *httptest.Server, query string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
	return websocket.DefaultDialer.Dial(url, nil)
}

func readWelcome(t *testing.T, conn *websocket.Conn) presenceWelcome {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var welcome presenceWelcome
	require.NoError(t, conn.ReadJSON(&welcome))
	return welcome
}

func TestPresence(t *testing.T) {
	d := newTestDaemon(t, nil)
	require.NoError(t, d.Start())
	defer d.Stop()

	server := httptest.NewServer(d.Handler())
	defer server.Close()

	startup := d.Status().SessionFile

	conn, _, err := dialPresence(t, server, "?client=alice")
	require.NoError(t, err)

	welcome := readWelcome(t, conn)
	assert.Equal(t, "welcome", welcome.Event)
	assert.Equal(t, "alice", welcome.Client)
	assert.NotEqual(t, startup, welcome.SessionFile, "first client starts a session")
	assert.Equal(t, 1, d.Status().Clients)

	t.Run("duplicate id is rejected", func(t *testing.T) {
		_, resp, err := dialPresence(t, server, "?client=alice")
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("generated id", func(t *testing.T) {
		anon, _, err := dialPresence(t, server, "")
		require.NoError(t, err)
		defer anon.Close()

		welcome := readWelcome(t, anon)
		assert.Len(t, welcome.Client, 21)
		assert.Equal(t, d.Status().SessionFile, welcome.SessionFile, "second client keeps the session")
	})

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	conn.Close()

	assert.Eventually(t, func() bool {
		return d.Status().Clients == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPresenceIDClaims(t *testing.T) {
	d := newTestDaemon(t, nil)
	require.NoError(t, d.Start())
	defer d.Stop()

	server := httptest.NewServer(d.Handler())
	defer server.Close()

	t.Run("id joined over HTTP is rejected", func(t *testing.T) {
		require.NoError(t, d.ClientJoined("dave"))

		_, resp, err := dialPresence(t, server, "?client=dave")
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, 1, d.Status().Clients)
	})

	t.Run("concurrent claims", func(t *testing.T) {
		var wg sync.WaitGroup
		var claimed atomic.Int32
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if d.reserveConn("erin") {
					claimed.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), claimed.Load())
		d.untrackConn("erin")
		assert.True(t, d.reserveConn("erin"), "released id can be claimed again")
		d.untrackConn("erin")
	})

	t.Run("exclusive join", func(t *testing.T) {
		assert.ErrorIs(t, d.join("dave", true), errClientConnected)
		assert.NoError(t, d.ClientJoined("dave"), "plain joins stay idempotent")
	})
}

func TestPresenceClosedOnStop(t *testing.T) {
	d := newTestDaemon(t, nil)
	require.NoError(t, d.Start())

	server := httptest.NewServer(d.Handler())
	defer server.Close()

	conn, _, err := dialPresence(t, server, "?client=bob")
	require.NoError(t, err)
	defer conn.Close()
	readWelcome(t, conn)

	require.NoError(t, d.Stop())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	assert.Eventually(t, func() bool {
		return d.Status().Clients == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPresenceNotRunning(t *testing.T) {
	d := newTestDaemon(t, nil)

	server := httptest.NewServer(d.Handler())
	defer server.Close()

	_, resp, err := dialPresence(t, server, "?client=carol")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
