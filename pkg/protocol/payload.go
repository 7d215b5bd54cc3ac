package protocol

// Type tags every Payload on the wire. Readers must switch on the tag before
// trusting any other field; only the fields relevant to a tag are meaningful.
type Type string

const (
	// connection lifecycle
	TypeConnect    Type = "Connect"    // client -> server, carries the display name
	TypeAssignID   Type = "AssignID"   // server -> client, id handshake response
	TypeDisconnect Type = "Disconnect" // either direction, explicit disconnect
	TypeSyncClient Type = "SyncClient" // quiet membership sync for late joiners

	// room management
	TypeRoomCreate Type = "RoomCreate"
	TypeRoomJoin   Type = "RoomJoin"
	TypeRoomLeave  Type = "RoomLeave"
	TypeRoomList   Type = "RoomList"

	// generic room traffic
	TypeMessage Type = "Message"
	TypeReverse Type = "Reverse"

	// ready check
	TypeReady      Type = "Ready"
	TypeSyncReady  Type = "SyncReady"  // quiet ready sync, no client-side feedback
	TypeResetReady Type = "ResetReady" // clear all local ready flags

	// game flow
	TypePhase       Type = "Phase"
	TypeTurn        Type = "Turn"
	TypeSyncTurn    Type = "SyncTurn"
	TypeResetTurn   Type = "ResetTurn"
	TypePick        Type = "Pick"
	TypePoints      Type = "Points"
	TypePlayerState Type = "PlayerState"
	TypeSettings    Type = "GameSettings"
	TypeRoundStart  Type = "RoundStart"
	TypeRoundEnd    Type = "RoundEnd"
	TypeScoreboard  Type = "Scoreboard"
	TypeGameEvent   Type = "GameEvent" // human-readable game notices, kept out of chat
	TypeTimer       Type = "Timer"     // remaining seconds for an active countdown
)

// DefaultClientID is the reserved "no id" sentinel. Server-assigned ids are
// strictly greater.
const DefaultClientID int64 = 0

// TimerKind identifies which countdown a Timer payload refers to.
type TimerKind string

const (
	TimerReady TimerKind = "ready"
	TimerRound TimerKind = "round"
	TimerTurn  TimerKind = "turn"
)

// Payload is the single wire record. One JSON object per record; json.Encoder
// newline framing delimits records on the stream.
type Payload struct {
	Type     Type   `json:"type"`
	ClientID int64  `json:"client_id,omitempty"`
	Message  string `json:"message,omitempty"`

	// Connect / AssignID / SyncClient
	ClientName string `json:"client_name,omitempty"`

	// Ready / SyncReady / Turn / SyncTurn
	Flag bool `json:"flag,omitempty"`

	// Pick
	Choice string `json:"choice,omitempty"`

	// Points / PlayerState
	Points int `json:"points,omitempty"`

	// PlayerState
	Eliminated bool `json:"eliminated,omitempty"`
	Away       bool `json:"away,omitempty"`
	Spectator  bool `json:"spectator,omitempty"`

	// GameSettings
	OptionCount     int   `json:"option_count,omitempty"`
	CooldownEnabled bool  `json:"cooldown_enabled,omitempty"`
	CreatorID       int64 `json:"creator_id,omitempty"`

	// RoomList
	Rooms []string `json:"rooms,omitempty"`

	// Timer
	TimerKind TimerKind `json:"timer_kind,omitempty"`
	Remaining int       `json:"remaining,omitempty"`
}
