// Package conn implements the per-peer connection: TCP dial, handshake
// exchange, an optional bitfield read, choke/interest state, and the
// send/read primitives the piece download loop drives.
package conn

import (
	"net"
	"time"

	"github.com/rsmoorthy/rm/bitfield"
	"github.com/rsmoorthy/rm/handshake"
	"github.com/rsmoorthy/rm/wire"
)

const (
	dialTimeout      = 5 * time.Second
	handshakeTimeout = 5 * time.Second
)

// Conn is one live connection to a peer, past the handshake.
type Conn struct {
	Addr     string
	Choked   bool
	Bitfield bitfield.Bitfield // nil until a bitfield message arrives

	netConn  net.Conn
	infoHash [20]byte
	peerID   [20]byte
}

// Connect dials addr, performs the handshake, verifies infoHash, and
// makes one attempt to read the first post-handshake frame: if it's a
// bitfield, it's retained; otherwise the message is simply not treated
// as a bitfield and the caller proceeds without one (absence of a
// bitfield is not an error).
func Connect(addr string, infoHash, peerID [20]byte) (*Conn, error) {
	netConn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, err
	}

	c := &Conn{Addr: addr, Choked: true, netConn: netConn, infoHash: infoHash, peerID: peerID}

	if err := c.handshake(); err != nil {
		netConn.Close()
		return nil, err
	}

	c.tryReadBitfield()

	return c, nil
}

func (c *Conn) handshake() error {
	c.netConn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer c.netConn.SetDeadline(time.Time{})

	req := handshake.New(c.infoHash, c.peerID)
	if _, err := c.netConn.Write(req.Serialize()); err != nil {
		return err
	}

	resp, err := handshake.Parse(c.netConn)
	if err != nil {
		return err
	}
	if resp.InfoHash != c.infoHash {
		return handshake.ErrIncorrectHash
	}
	return nil
}

// tryReadBitfield makes one bounded-time read attempt for the peer's
// opening frame. If it's a bitfield, it's retained. Any other message
// is processed the same way the piece download loop would (choke state
// updated; a `have` before any bitfield exists is ignored, since there
// is nothing yet to set a bit in). A keep-alive or a timeout simply
// leaves Bitfield nil, and later `have` messages do not allocate one, so
// the worker treats every piece as available from this peer.
func (c *Conn) tryReadBitfield() {
	c.netConn.SetDeadline(time.Now().Add(2 * time.Second))
	defer c.netConn.SetDeadline(time.Time{})

	msg, err := wire.Read(c.netConn)
	if err != nil || msg == nil {
		return
	}
	if msg.ID == wire.BitfieldID {
		c.Bitfield = bitfield.Bitfield(msg.Payload)
		return
	}
	c.ApplyState(msg)
}

// ApplyState updates choke state and accretes the bitfield from a
// `have` message, ignoring any other message kind. It is shared by the
// post-handshake opportunistic read and the per-piece download loop so
// both paths interpret choke/unchoke/have identically.
func (c *Conn) ApplyState(msg *wire.Message) {
	if msg == nil {
		return
	}
	switch msg.ID {
	case wire.Choke:
		c.Choked = true
	case wire.Unchoke:
		c.Choked = false
	case wire.Have:
		if c.Bitfield == nil {
			return
		}
		if idx, err := wire.ParseHave(msg); err == nil {
			c.Bitfield.Set(int(idx))
		}
	}
}

// Read returns the next decoded message, or (nil, nil) for a
// keep-alive.
func (c *Conn) Read() (*wire.Message, error) {
	return wire.Read(c.netConn)
}

// SendRequest issues a `request` frame for one block.
func (c *Conn) SendRequest(index, begin, length uint32) error {
	return c.send(wire.RequestMessage(index, begin, length))
}

// SendHave announces possession of a completed piece.
func (c *Conn) SendHave(index uint32) error {
	return c.send(wire.HaveMessage(index))
}

// Send transmits one of the four empty-payload messages
// (choke/unchoke/interested/not_interested).
func (c *Conn) Send(id wire.ID) error {
	return c.send(wire.Simple(id))
}

func (c *Conn) send(m *wire.Message) error {
	_, err := c.netConn.Write(m.Serialize())
	return err
}

// SetDeadline forwards to the underlying connection, letting the piece
// download loop bound a single piece's transfer time.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.netConn.SetDeadline(t)
}

// Close is idempotent and releases the bitfield buffer along with the
// socket.
func (c *Conn) Close() error {
	c.Bitfield = nil
	return c.netConn.Close()
}
