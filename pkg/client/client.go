// Package client speaks the server's wire protocol: it frames intents as
// tagged payloads and streams server records back to a handler. It suits
// bots, test drivers, and terminal frontends alike.
package client

import (
	"errors"
	"io"
	"net"
	"sync"

	"rpsarena/pkg/protocol"
)

// Handler receives every record the server sends, in order, on the Listen
// goroutine.
type Handler func(protocol.Payload)

// Client is one connection to the server. Intent methods are safe for
// concurrent use; Listen must only run once.
type Client struct {
	conn  net.Conn
	codec *protocol.Codec

	writeMu sync.Mutex

	mu sync.Mutex
	id int64
}

// Dial connects and immediately sends the connect handshake under the given
// display name.
func Dial(addr, name string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	c := New(conn)
	if err := c.connect(name); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// New wraps an established connection without handshaking. Callers that use
// New directly (websocket transports, tests) must send the handshake
// themselves via Connect.
func New(conn net.Conn) *Client {
	return &Client{conn: conn, codec: protocol.NewCodec(conn)}
}

// Connect sends the handshake record. The server drops connections whose
// first record is anything else.
func (c *Client) Connect(name string) error { return c.connect(name) }

func (c *Client) connect(name string) error {
	return c.send(protocol.Payload{Type: protocol.TypeConnect, ClientName: name})
}

// ID returns the server-assigned id, or protocol.DefaultClientID before the
// assignment record has been seen by Listen.
func (c *Client) ID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Listen decodes server records until the connection closes, tracking the
// assigned id and passing every record to h. It returns nil on a clean
// close.
func (c *Client) Listen(h Handler) error {
	for {
		p, err := c.codec.Decode()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if p.Type == protocol.TypeAssignID {
			c.mu.Lock()
			c.id = p.ClientID
			c.mu.Unlock()
		}
		if h != nil {
			h(p)
		}
	}
}

func (c *Client) send(p protocol.Payload) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.codec.Encode(p)
}

// Chat and lobby intents.

func (c *Client) SendMessage(text string) error {
	return c.send(protocol.Payload{Type: protocol.TypeMessage, Message: text})
}

func (c *Client) Reverse(text string) error {
	return c.send(protocol.Payload{Type: protocol.TypeReverse, Message: text})
}

func (c *Client) CreateRoom(name string) error {
	return c.send(protocol.Payload{Type: protocol.TypeRoomCreate, Message: name})
}

func (c *Client) JoinRoom(name string) error {
	return c.send(protocol.Payload{Type: protocol.TypeRoomJoin, Message: name})
}

func (c *Client) LeaveRoom() error {
	return c.send(protocol.Payload{Type: protocol.TypeRoomLeave})
}

func (c *Client) ListRooms(query string) error {
	return c.send(protocol.Payload{Type: protocol.TypeRoomList, Message: query})
}

// Game intents.

func (c *Client) Ready() error {
	return c.send(protocol.Payload{Type: protocol.TypeReady})
}

func (c *Client) Pick(choice string) error {
	return c.send(protocol.Payload{Type: protocol.TypePick, Choice: choice})
}

func (c *Client) TakeTurn() error {
	return c.send(protocol.Payload{Type: protocol.TypeTurn})
}

func (c *Client) Settings(optionCount int, cooldown bool) error {
	return c.send(protocol.Payload{Type: protocol.TypeSettings, OptionCount: optionCount, CooldownEnabled: cooldown})
}

// SetPlayerState reports the full desired state; the server applies both
// flags as sent, so callers pass their current value for the flag they are
// not changing.
func (c *Client) SetPlayerState(away, spectate bool) error {
	return c.send(protocol.Payload{Type: protocol.TypePlayerState, Away: away, Spectator: spectate})
}

func (c *Client) Scoreboard() error {
	return c.send(protocol.Payload{Type: protocol.TypeScoreboard})
}

// Disconnect asks the server to drop this client, then closes the socket.
func (c *Client) Disconnect() error {
	err := c.send(protocol.Payload{Type: protocol.TypeDisconnect})
	c.conn.Close()
	return err
}

func (c *Client) Close() error { return c.conn.Close() }
