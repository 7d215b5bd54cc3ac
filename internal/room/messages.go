package room

import (
	"errors"

	"rpsarena/pkg/protocol"
)

var ErrDuplicateRoom = errors.New("room already exists")
var ErrRoomNotFound = errors.New("room not found")

// Client is what a Room needs from a connection handler. Send must be safe
// to call from any goroutine and must report delivery failure instead of
// blocking or panicking; a false return is treated as a disconnect.
type Client interface {
	ID() int64
	Name() string
	DisplayName() string
	Send(p protocol.Payload) bool
	SetRoom(r *Room)
	Room() *Room
	Close()
}

// Registry is the server-wide room registry a Room dispatches create/join/
// list requests through. Implemented by the hub; injected at construction so
// rooms never reach for a global.
type Registry interface {
	CreateRoom(name string) error
	JoinRoom(name string, c Client) error
	ListRooms(query string) []string
	RemoveRoom(name string)
	MigrateToLobby(c Client)
}

// Msg is a message posted into a Room's inbox. All room state is mutated by
// the room's own goroutine, one message at a time.
type Msg interface{ isRoomMsg() }

// FromClient carries a decoded payload from a connection handler.
type FromClient struct {
	C Client
	P protocol.Payload
}

// AddClient admits a client into the room.
type AddClient struct{ C Client }

// TransferOut removes a client from this room and forwards it to another.
// Posted by the hub so that a room transfer is always remove-then-add.
type TransferOut struct {
	C  Client
	To *Room
}

// ClientGone reports that a client's connection died; the room prunes it
// without attempting further sends to it.
type ClientGone struct{ C Client }

// DisconnectAll force-disconnects every member (server shutdown path).
// Done, when non-nil, is closed after the room has processed the request.
type DisconnectAll struct{ Done chan struct{} }

// CloseRoom migrates members to the lobby and deregisters the room.
type CloseRoom struct{}

// timerFired and timerTick are posted by countdown callbacks; timers never
// touch room state from their own goroutines. gen is the generation the
// countdown was armed under; the room drops messages whose generation is no
// longer current, so an expiry racing the event that cancels it can never
// act on the next round's state.
type timerFired struct {
	kind protocol.TimerKind
	gen  uint64
}

type timerTick struct {
	kind      protocol.TimerKind
	gen       uint64
	remaining int
}

// GetView requests a read-only snapshot of the room's state.
type GetView struct{ Reply chan View }

// View is a race-free snapshot of room state for tests.
type View struct {
	Name       string
	Running    bool
	NumMembers int
	MemberIDs  []int64
	Phase      string
	Round      int
	Points     map[int64]int
	Ready      map[int64]bool
	Spectators map[int64]bool
	Eliminated map[int64]bool
	CreatorID  int64
	TimerGens  map[protocol.TimerKind]uint64
}

func (FromClient) isRoomMsg()    {}
func (AddClient) isRoomMsg()     {}
func (TransferOut) isRoomMsg()   {}
func (ClientGone) isRoomMsg()    {}
func (DisconnectAll) isRoomMsg() {}
func (CloseRoom) isRoomMsg()     {}
func (timerFired) isRoomMsg()    {}
func (timerTick) isRoomMsg()     {}
func (GetView) isRoomMsg()       {}
