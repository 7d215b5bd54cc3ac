package server

import (
	"context"
	"errors"
	"net"

	"go.uber.org/zap"

	"rpsarena/internal/hub"
	"rpsarena/internal/room"
	"rpsarena/internal/session"
	"rpsarena/pkg/protocol"
)

// Server accepts raw socket connections and admits them to the hub's lobby.
// The websocket surface reuses Handle, so both transports run identical
// sessions.
type Server struct {
	hub *hub.Hub
	log *zap.Logger
}

func New(h *hub.Hub, log *zap.Logger) *Server {
	return &Server{hub: h, log: log.Named("server")}
}

// ListenAndServe accepts connections until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	s.log.Info("listening", zap.String("addr", ln.Addr().String()))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.Handle(conn)
	}
}

// Handle runs one connection to completion. It blocks until the session is
// torn down, which lets the websocket handler keep its request alive.
func (s *Server) Handle(conn net.Conn) {
	sess := session.New(s.hub.NextClientID(), conn, s.log)
	if err := sess.Serve(s.admit); err != nil {
		s.log.Info("session rejected", zap.Error(err))
	}
}

// admit completes the handshake: the client learns its id, then lands in
// the lobby. Joining can only fail if the hub is already shutting down.
func (s *Server) admit(sess *session.Session) {
	if !sess.Send(protocol.Payload{Type: protocol.TypeAssignID, ClientID: sess.ID()}) {
		sess.Close()
		return
	}
	if err := s.hub.JoinRoom(room.Lobby, sess); err != nil {
		s.log.Warn("lobby admission failed", zap.Int64("client_id", sess.ID()), zap.Error(err))
		sess.Close()
	}
}
