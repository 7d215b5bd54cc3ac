package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"rpsarena/internal/hub"
	"rpsarena/internal/room"
	"rpsarena/internal/server"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// ListRooms answers GET /rooms?q= with the same filtered listing the socket
// protocol offers.
func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms := h.ListRooms(r.URL.Query().Get("q"))
		if rooms == nil {
			rooms = []string{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Rooms []string `json:"rooms"`
		}{Rooms: rooms})
	}
}

// CreateRoom answers POST /rooms with {"name": "..."}. The caller still
// joins over the socket protocol.
func CreateRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
			http.Error(w, "missing room name", http.StatusBadRequest)
			return
		}
		if err := h.CreateRoom(body.Name); err != nil {
			if errors.Is(err, room.ErrDuplicateRoom) {
				http.Error(w, "room already exists", http.StatusConflict)
				return
			}
			http.Error(w, "failed to create room", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

// WebSocket upgrades the request and runs the same session protocol the raw
// socket listener speaks, one JSON record per text message.
func WebSocket(srv *server.Server, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			// In dev ONLY, you can loosen origin checks:
			// OriginPatterns: []string{"http://localhost:*", "http://127.0.0.1:*"},
		})
		if err != nil {
			log.Info("websocket accept failed", zap.Error(err))
			return
		}

		nc := websocket.NetConn(r.Context(), conn, websocket.MessageText)
		srv.Handle(nc)
		conn.Close(websocket.StatusNormalClosure, "bye")
	}
}
