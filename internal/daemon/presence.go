package daemon

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

const closeWriteTimeout = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// presenceWelcome is the first message sent on a presence connection
type presenceWelcome struct {
	Event       string `json:"event"`
	Client      string `json:"client"`
	SessionFile string `json:"session_file,omitempty"`
}

// handlePresence keeps a client joined for as long as its websocket stays
// open. The client id comes from the "client" query parameter, or is
// generated when absent.
func (d *Daemon) handlePresence(w http.ResponseWriter, r *http.Request) {
	if !d.Status().Running {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "daemon is not running"})
		return
	}

	id := r.URL.Query().Get("client")
	if id == "" {
		generated, err := gonanoid.New()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		id = generated
	}

	if !d.reserveConn(id) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": fmt.Sprintf("client '%s' is already connected", id)})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.untrackConn(id)
		d.log().Error(fmt.Sprintf("Failed to upgrade connection: %v", err))
		return
	}

	if err := d.join(id, true); err != nil {
		d.untrackConn(id)
		code := websocket.CloseTryAgainLater
		if errors.Is(err, errClientConnected) {
			code = websocket.ClosePolicyViolation
		}
		closeConn(conn, code, err.Error())
		return
	}
	d.trackConn(id, conn)

	if err := conn.WriteJSON(presenceWelcome{
		Event:       "welcome",
		Client:      id,
		SessionFile: d.log().SessionFile(),
	}); err != nil {
		d.log().Debug(fmt.Sprintf("Failed to welcome client '%s': %v", id, err))
	}

	go d.readPresence(id, conn)
}

// readPresence drains the connection until the client goes away. Messages
// carry no meaning; only the connection lifetime does.
func (d *Daemon) readPresence(id string, conn *websocket.Conn) {
	defer func() {
		conn.Close()
		d.untrackConn(id)
		d.ClientLeft(id)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				d.log().Debug(fmt.Sprintf("Presence connection for '%s' closed: %v", id, err))
			}
			return
		}
	}
}

// reserveConn claims id for a presence connection. It fails when a
// connection already holds id or a client joined with it over HTTP.
func (d *Daemon) reserveConn(id string) bool {
	d.connMu.Lock()
	defer d.connMu.Unlock()

	if _, ok := d.conns[id]; ok {
		return false
	}

	d.mu.RLock()
	_, joined := d.clients[id]
	d.mu.RUnlock()
	if joined {
		return false
	}

	// Holds the id until the upgrade completes
	d.conns[id] = nil
	return true
}

func (d *Daemon) trackConn(id string, conn *websocket.Conn) {
	d.connMu.Lock()
	d.conns[id] = conn
	d.connMu.Unlock()
}

func (d *Daemon) untrackConn(id string) {
	d.connMu.Lock()
	delete(d.conns, id)
	d.connMu.Unlock()
}

// closeConns tells every presence client the server is going away
func (d *Daemon) closeConns() {
	d.connMu.Lock()
	conns := make([]*websocket.Conn, 0, len(d.conns))
	for _, conn := range d.conns {
		if conn != nil {
			conns = append(conns, conn)
		}
	}
	d.connMu.Unlock()

	for _, conn := range conns {
		closeConn(conn, websocket.CloseGoingAway, "server stopping")
	}
}

func closeConn(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
	conn.Close()
}
