// Package handshake serializes and parses the 68-byte BitTorrent
// handshake.
package handshake

import (
	"errors"
	"io"
)

// ErrBadHandshake is returned when the length-prefixed protocol string
// is missing or has the wrong length byte.
var ErrBadHandshake = errors.New("handshake: malformed handshake")

// ErrIncorrectHash is returned by the connection layer (not by Parse
// itself) when a parsed Handshake's InfoHash doesn't match the one this
// client expected.
var ErrIncorrectHash = errors.New("handshake: info_hash mismatch")

const (
	protocol = "BitTorrent protocol"
	// Len is the fixed wire length of a handshake: 1 + 19 + 8 + 20 + 20.
	Len = 68
)

// Handshake is the first message exchanged on a peer connection.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// New builds a Handshake for the given info hash and local peer id.
func New(infoHash, peerID [20]byte) *Handshake {
	return &Handshake{InfoHash: infoHash, PeerID: peerID}
}

// Serialize writes the fixed 68-byte wire form in one pass:
// 0x13, "BitTorrent protocol", 8 reserved zero bytes, info_hash, peer_id.
func (h *Handshake) Serialize() []byte {
	buf := make([]byte, Len)
	buf[0] = byte(len(protocol))
	pos := 1
	pos += copy(buf[pos:], protocol)
	pos += 8 // reserved, already zero
	pos += copy(buf[pos:], h.InfoHash[:])
	copy(buf[pos:], h.PeerID[:])
	return buf
}

// Parse reads exactly 68 bytes from r and decodes them into a
// Handshake. The length byte must equal 19; the protocol string itself
// is not otherwise validated (peers are free to use any pstr of that
// length in principle, though in practice it is always "BitTorrent
// protocol").
func Parse(r io.Reader) (*Handshake, error) {
	buf := make([]byte, Len)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	if buf[0] != 19 {
		return nil, ErrBadHandshake
	}

	var h Handshake
	copy(h.InfoHash[:], buf[1+19+8:1+19+8+20])
	copy(h.PeerID[:], buf[1+19+8+20:])
	return &h, nil
}
