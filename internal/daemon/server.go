package daemon

import (
	"encoding/json"
	"net/http"
)

// Handler exposes metrics, status and client presence over HTTP.
//
//	GET    /metrics
//	GET    /status
//	POST   /clients/{id}   client joined
//	DELETE /clients/{id}   client left
//	GET    /ws             joined while the websocket stays open
func (d *Daemon) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", d.metrics.Handler())
	mux.HandleFunc("GET /status", d.handleStatus)
	mux.HandleFunc("POST /clients/{id}", d.handleJoin)
	mux.HandleFunc("DELETE /clients/{id}", d.handleLeave)
	mux.HandleFunc("GET /ws", d.handlePresence)
	return mux
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Status())
}

func (d *Daemon) handleJoin(w http.ResponseWriter, r *http.Request) {
	if err := d.ClientJoined(r.PathValue("id")); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (d *Daemon) handleLeave(w http.ResponseWriter, r *http.Request) {
	d.ClientLeft(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
