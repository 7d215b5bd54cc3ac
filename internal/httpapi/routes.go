package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"rpsarena/internal/hub"
	"rpsarena/internal/server"
)

func SetupRoutes(h *hub.Hub, srv *server.Server, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/rooms", ListRooms(h))
	r.Post("/rooms", CreateRoom(h))
	r.Get("/ws", WebSocket(srv, log))
	return r
}
