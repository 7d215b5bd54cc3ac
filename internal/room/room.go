package room

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rpsarena/pkg/protocol"
)

// Lobby is the reserved default room. It is never auto-closed, even when
// empty, and it carries no game state.
const Lobby = "lobby"

// member is a room's per-client record. Gameplay flags live here rather than
// on the connection handler, so leaving a room discards them naturally.
type member struct {
	client     Client
	ready      bool
	tookTurn   bool
	points     int
	eliminated bool
	away       bool
	spectator  bool
	choice     string
	lastChoice string
}

// eligible reports whether this member participates in rounds: ready and not
// eliminated, away, or spectating.
func (m *member) eligible() bool {
	return m.ready && !m.eliminated && !m.away && !m.spectator
}

// Room is a named group of clients sharing broadcast scope. All mutation
// happens on the room's own goroutine via the inbox; timers and connection
// handlers only ever post messages.
type Room struct {
	name    string
	inbox   chan Msg
	members map[int64]*member
	reg     Registry
	log     *zap.Logger
	running bool
	ctx     context.Context
	cancel  context.CancelFunc

	// nil for the lobby; game rooms carry the state machine
	game *gameState
}

// New creates a plain room (chat, membership, room commands) and starts its
// loop. The lobby is a plain room.
func New(parent context.Context, name string, reg Registry, log *zap.Logger) *Room {
	return newRoom(parent, name, reg, log, nil)
}

// NewGame creates a room running the configured game variant.
func NewGame(parent context.Context, name string, reg Registry, log *zap.Logger, cfg GameConfig) *Room {
	return newRoom(parent, name, reg, log, newGameState(cfg))
}

func newRoom(parent context.Context, name string, reg Registry, log *zap.Logger, gs *gameState) *Room {
	ctx, cancel := context.WithCancel(parent)
	r := &Room{
		name:    name,
		inbox:   make(chan Msg, 64),
		members: make(map[int64]*member),
		reg:     reg,
		log:     log.Named("room").With(zap.String("room", name)),
		running: true,
		ctx:     ctx,
		cancel:  cancel,
		game:    gs,
	}
	r.log.Info("room created")
	go r.loop()
	return r
}

func (r *Room) Name() string { return r.name }

// Post delivers a message to the room loop. Posting to a closed room is a
// no-op, and a blocked post unblocks once the room shuts down, so callers
// can never hang on a dead room.
func (r *Room) Post(m Msg) {
	select {
	case <-r.ctx.Done():
	case r.inbox <- m:
	}
}

// Snapshot returns a point-in-time view of the room, or the zero View if
// the room has already shut down.
func (r *Room) Snapshot() View {
	reply := make(chan View, 1)
	r.Post(GetView{Reply: reply})
	select {
	case <-r.ctx.Done():
		return View{}
	case v := <-reply:
		return v
	}
}

func (r *Room) loop() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case m := <-r.inbox:
			r.dispatch(m)
		}
	}
}

func (r *Room) dispatch(m Msg) {
	switch msg := m.(type) {
	case AddClient:
		r.addClient(msg.C)
	case TransferOut:
		r.removeClient(msg.C)
		msg.To.Post(AddClient{C: msg.C})
	case ClientGone:
		r.prune(msg.C)
	case FromClient:
		r.handlePayload(msg.C, msg.P)
	case DisconnectAll:
		r.disconnectAll()
		if msg.Done != nil {
			close(msg.Done)
		}
	case CloseRoom:
		r.close()
	case timerFired:
		r.onTimerFired(msg.kind, msg.gen)
	case timerTick:
		if r.game != nil && msg.gen == r.game.timerGen[msg.kind] {
			r.broadcast(protocol.Payload{Type: protocol.TypeTimer, TimerKind: msg.kind, Remaining: msg.remaining})
		}
	case GetView:
		msg.Reply <- r.view()
	}
}

// handlePayload routes one decoded payload from a member by tag.
func (r *Room) handlePayload(c Client, p protocol.Payload) {
	switch p.Type {
	case protocol.TypeMessage:
		r.handleMessage(c, p.Message)
	case protocol.TypeReverse:
		r.handleReverse(c, p.Message)
	case protocol.TypeRoomCreate:
		r.handleCreateRoom(c, p.Message)
	case protocol.TypeRoomJoin:
		r.handleJoinRoom(c, p.Message)
	case protocol.TypeRoomLeave:
		r.handleJoinRoom(c, Lobby)
	case protocol.TypeRoomList:
		r.handleListRooms(c, p.Message)
	case protocol.TypeDisconnect:
		r.disconnect(c)
	default:
		r.handleGamePayload(c, p)
	}
}

// addClient admits a client. Re-adding an existing member logs and no-ops.
func (r *Room) addClient(c Client) {
	if !r.running {
		return
	}
	if _, exists := r.members[c.ID()]; exists {
		r.log.Info("client already in room", zap.Int64("client_id", c.ID()))
		return
	}
	r.members[c.ID()] = &member{client: c}
	c.SetRoom(r)
	r.joinStatusRelay(c, true)
	r.syncMembership(c)
	if r.game != nil {
		r.onClientAdded(r.members[c.ID()])
	}
}

// removeClient drops a member, announces the departure, and auto-closes the
// room if it was the last one out.
func (r *Room) removeClient(c Client) {
	if !r.running {
		return
	}
	if _, exists := r.members[c.ID()]; !exists {
		r.log.Info("client not in room", zap.Int64("client_id", c.ID()))
		return
	}
	r.joinStatusRelay(c, false)
	delete(r.members, c.ID())
	if r.game != nil {
		r.onClientRemoved(c)
	}
	r.autoCleanup()
}

// disconnect removes the member and closes its connection. Used for explicit
// disconnect requests and for delivery failures.
func (r *Room) disconnect(c Client) {
	if !r.running {
		return
	}
	m, exists := r.members[c.ID()]
	if !exists {
		return
	}
	delete(r.members, c.ID())
	m.client.Close()
	r.relay(nil, fmt.Sprintf("%s disconnected", c.DisplayName()))
	r.broadcast(protocol.Payload{Type: protocol.TypeDisconnect, ClientID: c.ID()})
	if r.game != nil {
		r.onClientRemoved(c)
	}
	r.autoCleanup()
}

// prune drops a member whose connection is already known dead; no farewell
// sends are attempted toward it.
func (r *Room) prune(c Client) {
	if _, exists := r.members[c.ID()]; !exists {
		return
	}
	delete(r.members, c.ID())
	r.relay(nil, fmt.Sprintf("%s disconnected", c.DisplayName()))
	if r.game != nil {
		r.onClientRemoved(c)
	}
	r.autoCleanup()
}

func (r *Room) disconnectAll() {
	r.log.Info("disconnecting all members", zap.Int("count", len(r.members)))
	if !r.running {
		return
	}
	for id, m := range r.members {
		m.client.Send(protocol.Payload{Type: protocol.TypeDisconnect, ClientID: id})
		m.client.Close()
		delete(r.members, id)
	}
	r.autoCleanup()
}

// autoCleanup closes the room once the last member leaves. The lobby is
// exempt.
func (r *Room) autoCleanup() {
	if !strings.EqualFold(r.name, Lobby) && len(r.members) == 0 {
		r.close()
	}
}

// close migrates any remaining members into the lobby, deregisters the room,
// and stops the loop. Never drops a client silently.
func (r *Room) close() {
	if !r.running {
		return
	}
	if len(r.members) > 0 {
		r.relay(nil, "Room is shutting down, migrating to lobby")
		r.log.Info("migrating members to lobby", zap.Int("count", len(r.members)))
		for id, m := range r.members {
			delete(r.members, id)
			r.reg.MigrateToLobby(m.client)
		}
	}
	if r.game != nil {
		r.game.stopTimers()
	}
	r.running = false
	r.reg.RemoveRoom(r.name)
	r.log.Info("room closed")
	r.cancel()
}

// broadcast sends a payload to every member, then prunes every member whose
// delivery failed. Failures never interrupt the first pass, so membership is
// not mutated while it is being iterated.
func (r *Room) broadcast(p protocol.Payload) {
	var failed []Client
	for _, m := range r.members {
		if !m.client.Send(p) {
			failed = append(failed, m.client)
		}
	}
	for _, c := range failed {
		r.log.Warn("send failed, dropping client", zap.Int64("client_id", c.ID()))
		r.disconnect(c)
	}
}

// sendTo delivers to one member and prunes it on failure.
func (r *Room) sendTo(c Client, p protocol.Payload) {
	if !c.Send(p) {
		r.disconnect(c)
	}
}

// relay broadcasts a chat-style message to all members. A nil sender marks a
// server-originated message.
func (r *Room) relay(sender Client, text string) {
	if !r.running {
		return
	}
	senderID := protocol.DefaultClientID
	if sender != nil {
		senderID = sender.ID()
	}
	r.broadcast(protocol.Payload{Type: protocol.TypeMessage, ClientID: senderID, Message: text})
}

// gameEvent broadcasts a human-readable game notice, kept out of chat.
func (r *Room) gameEvent(text string) {
	r.broadcast(protocol.Payload{Type: protocol.TypeGameEvent, Message: text})
}

func (r *Room) joinStatusRelay(c Client, joined bool) {
	typ := protocol.TypeRoomJoin
	if !joined {
		typ = protocol.TypeRoomLeave
	}
	r.broadcast(protocol.Payload{Type: typ, ClientID: c.ID(), ClientName: c.Name(), Message: r.name})
}

// syncMembership quietly sends the current member list to a late joiner.
func (r *Room) syncMembership(c Client) {
	for id, m := range r.members {
		if id == c.ID() {
			continue
		}
		if !c.Send(protocol.Payload{Type: protocol.TypeSyncClient, ClientID: id, ClientName: m.client.Name()}) {
			r.disconnect(c)
			return
		}
	}
}

// handle methods for common (non-game) operations

func (r *Room) handleMessage(c Client, text string) {
	if r.game != nil && r.interceptGameMessage(c, text) {
		return
	}
	r.relay(c, text)
}

func (r *Room) handleReverse(c Client, text string) {
	b := []byte(text)
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	r.relay(c, string(b))
}

func (r *Room) handleCreateRoom(c Client, name string) {
	if strings.TrimSpace(name) == "" {
		r.sendTo(c, serverMessage("Room name cannot be empty"))
		return
	}
	if err := r.reg.CreateRoom(name); err != nil {
		if errors.Is(err, ErrDuplicateRoom) {
			r.sendTo(c, serverMessage(fmt.Sprintf("Room %s already exists", name)))
			return
		}
		r.log.Error("create room failed", zap.String("name", name), zap.Error(err))
		return
	}
	if err := r.reg.JoinRoom(name, c); err != nil {
		// freshly created; not finding it would be a registry bug
		r.log.Error("join after create failed", zap.String("name", name), zap.Error(err))
	}
}

func (r *Room) handleJoinRoom(c Client, name string) {
	if err := r.reg.JoinRoom(name, c); err != nil {
		if errors.Is(err, ErrRoomNotFound) {
			r.sendTo(c, serverMessage(fmt.Sprintf("Room %s doesn't exist", name)))
			return
		}
		r.log.Error("join room failed", zap.String("name", name), zap.Error(err))
	}
}

func (r *Room) handleListRooms(c Client, query string) {
	rooms := r.reg.ListRooms(query)
	r.sendTo(c, protocol.Payload{Type: protocol.TypeRoomList, Rooms: rooms})
}

func serverMessage(text string) protocol.Payload {
	return protocol.Payload{Type: protocol.TypeMessage, ClientID: protocol.DefaultClientID, Message: text}
}

func (r *Room) view() View {
	v := View{
		Name:       r.name,
		Running:    r.running,
		NumMembers: len(r.members),
		Points:     make(map[int64]int),
		Ready:      make(map[int64]bool),
		Spectators: make(map[int64]bool),
		Eliminated: make(map[int64]bool),
	}
	for id, m := range r.members {
		v.MemberIDs = append(v.MemberIDs, id)
		v.Points[id] = m.points
		v.Ready[id] = m.ready
		v.Spectators[id] = m.spectator
		v.Eliminated[id] = m.eliminated
	}
	if r.game != nil {
		v.Phase = string(r.game.phase)
		v.Round = r.game.round
		v.CreatorID = r.game.creatorID
		v.TimerGens = make(map[protocol.TimerKind]uint64, len(r.game.timerGen))
		for kind, gen := range r.game.timerGen {
			v.TimerGens[kind] = gen
		}
	}
	return v
}
