package session

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"

	"rpsarena/internal/room"
	"rpsarena/internal/timer"
	"rpsarena/pkg/protocol"
)

// handshakeSeconds is how long a fresh connection may sit silent before it
// is dropped. The first record on the wire must be a connect.
const handshakeSeconds = 3

// outboxSize bounds per-session delivery. A session that cannot drain this
// many payloads is treated as failed rather than allowed to stall a room.
const outboxSize = 32

// ErrHandshake is returned by Serve when a connection never completes the
// connect handshake.
var ErrHandshake = errors.New("session: no connect handshake")

// Session is one connected client. It owns the conn and the codec; rooms
// only ever see it through the room.Client interface. Send never performs
// network IO on the caller's goroutine: payloads are queued to the outbox
// and written by a dedicated writer goroutine.
type Session struct {
	id    int64
	conn  net.Conn
	codec *protocol.Codec
	log   *zap.Logger

	outbox chan protocol.Payload

	mu     sync.Mutex
	name   string
	room   *room.Room
	closed bool

	closeOnce sync.Once
	writeDone chan struct{}
}

// New wraps an accepted connection. The session does nothing until Serve.
func New(id int64, conn net.Conn, log *zap.Logger) *Session {
	return &Session{
		id:        id,
		conn:      conn,
		codec:     protocol.NewCodec(conn),
		log:       log.Named("session").With(zap.Int64("client_id", id)),
		outbox:    make(chan protocol.Payload, outboxSize),
		writeDone: make(chan struct{}),
	}
}

func (s *Session) ID() int64 { return s.id }

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// DisplayName is the name shown in relays, disambiguated by id.
func (s *Session) DisplayName() string {
	return fmt.Sprintf("%s#%d", s.Name(), s.id)
}

func (s *Session) SetRoom(r *room.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = r
}

func (s *Session) Room() *room.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Send queues a payload for delivery. It reports false when the session is
// closed or its outbox is full; rooms treat false as a failed client.
func (s *Session) Send(p protocol.Payload) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	select {
	case s.outbox <- p:
		return true
	default:
		s.log.Warn("outbox full, dropping client")
		return false
	}
}

// Close releases the connection. Idempotent; safe from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		_ = s.conn.Close()
	})
}

// Serve runs the handshake and then the read loop until the connection
// fails or the peer disconnects. onReady is invoked exactly once, after the
// connect record arrives, so the caller can assign the session to a room.
// Serve returns once the connection is torn down.
func (s *Session) Serve(onReady func(*Session)) error {
	go s.writeLoop()
	defer s.Close()
	defer close(s.writeDone)

	grace := timer.New(handshakeSeconds, nil, func() {
		s.log.Info("handshake timed out")
		s.Close()
	})

	first, err := s.codec.Decode()
	grace.Cancel()
	if err != nil {
		return ErrHandshake
	}
	if first.Type != protocol.TypeConnect {
		s.log.Info("expected connect, dropping", zap.String("type", string(first.Type)))
		return ErrHandshake
	}
	s.mu.Lock()
	s.name = first.ClientName
	s.mu.Unlock()
	s.log.Info("client connected", zap.String("name", first.ClientName))

	onReady(s)

	for {
		p, err := s.codec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Info("read failed", zap.Error(err))
			}
			s.drop()
			return nil
		}
		// the connect record is a handshake, not a room operation
		if p.Type == protocol.TypeConnect {
			continue
		}
		if r := s.Room(); r != nil {
			r.Post(room.FromClient{C: s, P: p})
		}
	}
}

// drop tears the session down and tells its room the connection is gone.
// The room prunes without attempting farewell sends.
func (s *Session) drop() {
	s.Close()
	if r := s.Room(); r != nil {
		r.Post(room.ClientGone{C: s})
	}
}

func (s *Session) writeLoop() {
	for {
		select {
		case <-s.writeDone:
			return
		case p := <-s.outbox:
			if err := s.codec.Encode(p); err != nil {
				s.log.Info("write failed", zap.Error(err))
				s.drop()
				return
			}
		}
	}
}
