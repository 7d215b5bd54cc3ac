package protocol

import (
	"encoding/json"
	"fmt"
	"io"
)

// Codec reads and writes newline-delimited JSON payloads over a duplex
// stream. It carries no framing state, so a decode error means the stream is
// unusable and the connection must be torn down.
type Codec struct {
	enc *json.Encoder
	dec *json.Decoder
}

func NewCodec(rw io.ReadWriter) *Codec {
	return &Codec{
		enc: json.NewEncoder(rw),
		dec: json.NewDecoder(rw),
	}
}

// Decode blocks until the next record arrives. io.EOF signals an orderly
// remote close; any other error is connection-fatal.
func (c *Codec) Decode() (Payload, error) {
	var p Payload
	if err := c.dec.Decode(&p); err != nil {
		return Payload{}, err
	}
	if p.Type == "" {
		return Payload{}, fmt.Errorf("payload missing type tag")
	}
	return p, nil
}

func (c *Codec) Encode(p Payload) error {
	return c.enc.Encode(p)
}
