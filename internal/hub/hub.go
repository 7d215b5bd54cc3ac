package hub

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"rpsarena/internal/room"
)

// Msg is a registry request posted into the hub's inbox.
type Msg interface{ isHubMsg() }

type createRoom struct {
	name  string
	reply chan error
}

type joinRoom struct {
	name   string
	client room.Client
	reply  chan error
}

type listRooms struct {
	query string
	reply chan []string
}

type removeRoom struct{ name string }

type migrate struct{ client room.Client }

type shutdown struct{ done chan struct{} }

func (createRoom) isHubMsg() {}
func (joinRoom) isHubMsg()   {}
func (listRooms) isHubMsg()  {}
func (removeRoom) isHubMsg() {}
func (migrate) isHubMsg()    {}
func (shutdown) isHubMsg()   {}

// listLimit caps room listing responses.
const listLimit = 10

// Hub is the process-wide room registry. It is explicitly constructed and
// injected (rooms receive it as their Registry); all registry state is owned
// by the hub goroutine. Client ids are handed out from a strictly increasing
// counter and never reused.
type Hub struct {
	inbox  chan Msg
	rooms  map[string]*room.Room // keyed by lowercase name
	lobby  *room.Room
	nextID atomic.Int64
	cfg    room.GameConfig
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs the hub and its lobby. The lobby exists before any
// connection is admitted.
func New(parent context.Context, log *zap.Logger, cfg room.GameConfig) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan Msg, 64),
		rooms:  make(map[string]*room.Room),
		cfg:    cfg,
		log:    log.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
	}
	h.lobby = room.New(ctx, room.Lobby, h, log)
	h.rooms[room.Lobby] = h.lobby
	go h.loop()
	return h
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return
		case m := <-h.inbox:
			switch msg := m.(type) {
			case createRoom:
				msg.reply <- h.create(msg.name)
			case joinRoom:
				h.join(msg)
			case listRooms:
				msg.reply <- h.list(msg.query)
			case removeRoom:
				if !strings.EqualFold(msg.name, room.Lobby) {
					delete(h.rooms, strings.ToLower(msg.name))
					h.log.Info("room removed", zap.String("name", msg.name))
				}
			case migrate:
				go h.lobby.Post(room.AddClient{C: msg.client})
			case shutdown:
				h.drainRooms()
				close(msg.done)
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) create(name string) error {
	key := strings.ToLower(name)
	if _, exists := h.rooms[key]; exists {
		return room.ErrDuplicateRoom
	}
	h.rooms[key] = room.NewGame(h.ctx, name, h, h.log, h.cfg)
	h.log.Info("room created", zap.String("name", name))
	return nil
}

func (h *Hub) join(msg joinRoom) {
	target, exists := h.rooms[strings.ToLower(msg.name)]
	if !exists {
		msg.reply <- room.ErrRoomNotFound
		return
	}
	// reply before posting so a room requesting a transfer for its own
	// member is already back in its loop when the TransferOut arrives.
	// Posts run off the hub goroutine: a room stalled with a full inbox
	// must never stall the registry with it.
	msg.reply <- nil
	if old := msg.client.Room(); old != nil && old != target {
		go old.Post(room.TransferOut{C: msg.client, To: target})
		return
	}
	go target.Post(room.AddClient{C: msg.client})
}

func (h *Hub) list(query string) []string {
	q := strings.ToLower(query)
	var names []string
	for _, r := range h.rooms {
		if strings.Contains(strings.ToLower(r.Name()), q) {
			names = append(names, r.Name())
		}
	}
	sort.Strings(names)
	if len(names) > listLimit {
		names = names[:listLimit]
	}
	return names
}

func (h *Hub) drainRooms() {
	h.log.Info("shutting down rooms", zap.Int("count", len(h.rooms)))
	for name, r := range h.rooms {
		done := make(chan struct{})
		go r.Post(room.DisconnectAll{Done: done})
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			h.log.Warn("room did not drain in time", zap.String("name", name))
		}
		delete(h.rooms, name)
	}
}

// post delivers a request unless the hub has shut down.
func (h *Hub) post(m Msg) bool {
	select {
	case <-h.ctx.Done():
		return false
	case h.inbox <- m:
		return true
	}
}

// Registry implementation. These are synchronous wrappers over the inbox
// and must not be called from the hub goroutine itself.

func (h *Hub) CreateRoom(name string) error {
	reply := make(chan error, 1)
	if !h.post(createRoom{name: name, reply: reply}) {
		return room.ErrRoomNotFound
	}
	return <-reply
}

func (h *Hub) JoinRoom(name string, c room.Client) error {
	reply := make(chan error, 1)
	if !h.post(joinRoom{name: name, client: c, reply: reply}) {
		return room.ErrRoomNotFound
	}
	return <-reply
}

func (h *Hub) ListRooms(query string) []string {
	reply := make(chan []string, 1)
	if !h.post(listRooms{query: query, reply: reply}) {
		return nil
	}
	return <-reply
}

func (h *Hub) RemoveRoom(name string) {
	h.post(removeRoom{name: name})
}

func (h *Hub) MigrateToLobby(c room.Client) {
	h.post(migrate{client: c})
}

// NextClientID assigns a fresh client id, strictly greater than
// protocol.DefaultClientID and unique for the process lifetime.
func (h *Hub) NextClientID() int64 {
	return h.nextID.Add(1)
}

// Shutdown disconnects every client, closes every room, and stops the hub.
func (h *Hub) Shutdown() {
	done := make(chan struct{})
	if !h.post(shutdown{done: done}) {
		return
	}
	select {
	case <-done:
	case <-h.ctx.Done():
	}
}
