package wire

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestSimpleMessageRoundTrip(t *testing.T) {
	for _, id := range []ID{Choke, Unchoke, Interested, NotInterested} {
		m := Simple(id)
		got, err := Read(bytes.NewReader(m.Serialize()))
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if got.ID != id || len(got.Payload) != 0 {
			t.Fatalf("round trip mismatch for %s: %+v", id, got)
		}
		if len(m.Serialize()) != 4+1 {
			t.Fatalf("expected serialized length 5, got %d", len(m.Serialize()))
		}
	}
}

func TestHaveMessage(t *testing.T) {
	m := HaveMessage(7)
	if len(m.Serialize()) != 4+1+4 {
		t.Fatalf("unexpected have length %d", len(m.Serialize()))
	}
	got, err := Read(bytes.NewReader(m.Serialize()))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	idx, err := ParseHave(got)
	if err != nil || idx != 7 {
		t.Fatalf("ParseHave: idx=%d err=%v", idx, err)
	}
}

func TestRequestCancelLength(t *testing.T) {
	req := RequestMessage(1, 2, 3)
	if len(req.Serialize()) != 4+1+12 {
		t.Fatalf("unexpected request length %d", len(req.Serialize()))
	}
	cancel := CancelMessage(1, 2, 3)
	if len(cancel.Serialize()) != 4+1+12 {
		t.Fatalf("unexpected cancel length %d", len(cancel.Serialize()))
	}
}

func TestPieceRoundTripS5(t *testing.T) {
	// S5: length-prefix 0x0000000D, id 0x07, index=0, begin=0, block="abcd".
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(13))
	buf.WriteByte(7)
	binary.Write(&buf, binary.BigEndian, uint32(0))
	binary.Write(&buf, binary.BigEndian, uint32(0))
	buf.WriteString("abcd")

	m, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if m.ID != Piece {
		t.Fatalf("expected piece, got %s", m.ID)
	}

	target := make([]byte, 4)
	n, err := ParsePiece(0, target, m)
	if err != nil {
		t.Fatalf("ParsePiece: %v", err)
	}
	if n != 4 || string(target) != "abcd" {
		t.Fatalf("unexpected block: n=%d target=%q", n, target)
	}
}

func TestBitfieldMessageLength(t *testing.T) {
	m := BitfieldMessage([]byte{0xff, 0x00})
	if len(m.Serialize()) != 4+1+2 {
		t.Fatalf("unexpected bitfield length %d", len(m.Serialize()))
	}
}

func TestKeepAlive(t *testing.T) {
	buf := make([]byte, 4)
	m, err := Read(bytes.NewReader(buf))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil message for keep-alive, got %+v", m)
	}
}

func TestUnsupportedIDDrainsPayload(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(3))
	buf.WriteByte(200) // unknown id
	buf.WriteString("xy")

	_, err := Read(&buf)
	if err == nil {
		t.Fatal("expected ErrUnsupported")
	}
	if buf.Len() != 0 {
		t.Fatalf("expected payload fully drained, %d bytes left", buf.Len())
	}
}

func TestParsePieceIncorrectIndex(t *testing.T) {
	m := PieceMessage(1, 0, []byte("ab"))
	_, err := ParsePiece(0, make([]byte, 4), m)
	if err == nil {
		t.Fatal("expected ErrIncorrectIndex")
	}
}

func TestParsePieceIncorrectOffset(t *testing.T) {
	m := PieceMessage(0, 10, []byte("ab"))
	_, err := ParsePiece(0, make([]byte, 4), m)
	if err == nil {
		t.Fatal("expected ErrIncorrectOffset")
	}
}
