// Package wire implements the length-prefixed peer wire message codec:
// choke/unchoke/interested/not_interested/have/bitfield/request/piece/
// cancel, plus the zero-length keep-alive frame.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ID identifies a message's type. The zero value is Choke. A zero-length
// keep-alive frame carries no ID and decodes to a nil *Message instead.
type ID uint8

const (
	Choke ID = iota
	Unchoke
	Interested
	NotInterested
	Have
	BitfieldID
	Request
	Piece
	Cancel
)

func (id ID) String() string {
	switch id {
	case Choke:
		return "choke"
	case Unchoke:
		return "unchoke"
	case Interested:
		return "interested"
	case NotInterested:
		return "not_interested"
	case Have:
		return "have"
	case BitfieldID:
		return "bitfield"
	case Request:
		return "request"
	case Piece:
		return "piece"
	case Cancel:
		return "cancel"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// ErrUnsupported is returned by Read when the frame's message id is not
// one of the nine known ids. The frame's payload has already been fully
// consumed from the stream, so the connection stays usable; callers
// should skip the message and continue reading, not tear the connection
// down.
var ErrUnsupported = errors.New("wire: unsupported message id")

// Message is one decoded, non-keep-alive peer message.
type Message struct {
	ID      ID
	Payload []byte
}

// HaveMessage builds a `have` message announcing possession of index.
func HaveMessage(index uint32) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, index)
	return &Message{ID: Have, Payload: payload}
}

// RequestMessage builds a `request` message for one block.
func RequestMessage(index, begin, length uint32) *Message {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)
	binary.BigEndian.PutUint32(payload[8:12], length)
	return &Message{ID: Request, Payload: payload}
}

// CancelMessage builds a `cancel` message, identical in shape to
// `request`.
func CancelMessage(index, begin, length uint32) *Message {
	m := RequestMessage(index, begin, length)
	m.ID = Cancel
	return m
}

// Simple builds one of the four empty-payload messages.
func Simple(id ID) *Message {
	return &Message{ID: id}
}

// Serialize returns the length-prefixed wire form: 4-byte big-endian
// length followed by the id byte and payload. A nil Message serializes
// to the 4-byte zero-length keep-alive frame.
func (m *Message) Serialize() []byte {
	if m == nil {
		return make([]byte, 4)
	}
	length := uint32(len(m.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = byte(m.ID)
	copy(buf[5:], m.Payload)
	return buf
}

// Read decodes the next frame from r. A zero-length frame (keep-alive)
// decodes to (nil, nil); the caller should loop and read again. An
// unrecognized id still drains its payload off the stream before
// returning, wrapped as ErrUnsupported, so the connection is left in a
// consistent state for the next Read.
func Read(r io.Reader) (*Message, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length == 0 {
		return nil, nil
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	id := ID(payload[0])
	msg := &Message{ID: id, Payload: payload[1:]}

	switch id {
	case Choke, Unchoke, Interested, NotInterested, Have, BitfieldID, Request, Piece, Cancel:
		return msg, nil
	default:
		return msg, fmt.Errorf("%w: id %d", ErrUnsupported, id)
	}
}

// ParseHave extracts the piece index from a `have` message.
func ParseHave(m *Message) (uint32, error) {
	if m.ID != Have {
		return 0, fmt.Errorf("wire: expected have, got %s", m.ID)
	}
	if len(m.Payload) != 4 {
		return 0, fmt.Errorf("wire: have payload length %d, want 4", len(m.Payload))
	}
	return binary.BigEndian.Uint32(m.Payload), nil
}

// ErrIncorrectIndex is returned by ParsePiece when the block's index
// doesn't match the piece currently being assembled.
var ErrIncorrectIndex = errors.New("wire: piece index mismatch")

// ErrIncorrectOffset is returned by ParsePiece when begin+len(block)
// would write past the end of buf.
var ErrIncorrectOffset = errors.New("wire: piece offset out of bounds")

// ParsePiece copies a `piece` message's block into buf at its begin
// offset, after checking that index matches wantIndex and the block
// fits within buf. It returns the number of bytes copied.
func ParsePiece(wantIndex uint32, buf []byte, m *Message) (int, error) {
	if m.ID != Piece {
		return 0, fmt.Errorf("wire: expected piece, got %s", m.ID)
	}
	if len(m.Payload) < 8 {
		return 0, fmt.Errorf("wire: piece payload too short: %d < 8", len(m.Payload))
	}

	index := binary.BigEndian.Uint32(m.Payload[0:4])
	if index != wantIndex {
		return 0, fmt.Errorf("%w: want %d got %d", ErrIncorrectIndex, wantIndex, index)
	}

	begin := binary.BigEndian.Uint32(m.Payload[4:8])
	block := m.Payload[8:]
	if uint64(begin)+uint64(len(block)) > uint64(len(buf)) {
		return 0, fmt.Errorf("%w: begin %d len %d buf %d", ErrIncorrectOffset, begin, len(block), len(buf))
	}

	copy(buf[begin:], block)
	return len(block), nil
}

// PieceMessage builds a `piece` message carrying one block, used only
// by tests and stub peers.
func PieceMessage(index, begin uint32, block []byte) *Message {
	payload := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:4], index)
	binary.BigEndian.PutUint32(payload[4:8], begin)
	copy(payload[8:], block)
	return &Message{ID: Piece, Payload: payload}
}

// BitfieldMessage wraps a raw bitfield payload as a `bitfield` message.
func BitfieldMessage(bits []byte) *Message {
	return &Message{ID: BitfieldID, Payload: bits}
}
