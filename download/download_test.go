package download

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	realBencode "github.com/jackpal/bencode-go"
	"github.com/rsmoorthy/rm/config"
	"github.com/rsmoorthy/rm/handshake"
	"github.com/rsmoorthy/rm/wire"
)

func TestWorkerCount(t *testing.T) {
	if got := workerCount(10, 4); got != 4 {
		t.Fatalf("expected override 4, got %d", got)
	}
	if got := workerCount(2, 4); got != 2 {
		t.Fatalf("expected min(2,4)=2, got %d", got)
	}
}

func TestOutputPath(t *testing.T) {
	if got := outputPath("", "a.bin"); filepath.Base(got) != "a.bin" {
		t.Fatalf("unexpected path: %s", got)
	}
}

type bencodeInfo struct {
	PieceLength int    `bencode:"piece length"`
	Pieces      string `bencode:"pieces"`
	Name        string `bencode:"name"`
	Length      int    `bencode:"length,omitempty"`
}

type bencodeTorrent struct {
	Announce string      `bencode:"announce"`
	Info     bencodeInfo `bencode:"info"`
}

func stubSeedPeer(t *testing.T, ln net.Listener, infoHash [20]byte, data []byte, pieceLength, numPieces int) {
	t.Helper()
	c, err := ln.Accept()
	if err != nil {
		return
	}
	defer c.Close()

	if _, err := handshake.Parse(c); err != nil {
		return
	}
	c.Write(handshake.New(infoHash, [20]byte{9}).Serialize())

	bits := make([]byte, (numPieces+7)/8)
	for i := 0; i < numPieces; i++ {
		bits[i/8] |= 1 << (7 - uint(i%8))
	}
	c.Write(wire.BitfieldMessage(bits).Serialize())
	c.Write(wire.Simple(wire.Unchoke).Serialize())

	for {
		msg, err := wire.Read(c)
		if err != nil {
			return
		}
		if msg == nil || msg.ID != wire.Request {
			continue
		}
		index := binary.BigEndian.Uint32(msg.Payload[0:4])
		begin := binary.BigEndian.Uint32(msg.Payload[4:8])
		length := binary.BigEndian.Uint32(msg.Payload[8:12])
		offset := int(index)*pieceLength + int(begin)
		c.Write(wire.PieceMessage(index, begin, data[offset:offset+int(length)]).Serialize())
	}
}

// TestEndToEndDownload drives the full Download entry point: a real
// .torrent file on disk, a stub HTTP tracker, and an in-process stub
// peer serving correct bytes. The resulting file must equal the
// original byte-for-byte.
func TestEndToEndDownload(t *testing.T) {
	const pieceLength = 16 * 1024
	total := 2*pieceLength + 4000
	data := make([]byte, total)
	for i := range data {
		data[i] = byte((i * 7) % 256)
	}

	numPieces := (total + pieceLength - 1) / pieceLength
	var piecesBlob bytes.Buffer
	for i := 0; i < numPieces; i++ {
		begin := i * pieceLength
		end := begin + pieceLength
		if end > total {
			end = total
		}
		h := sha1.Sum(data[begin:end])
		piecesBlob.Write(h[:])
	}

	dir := t.TempDir()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	peerAddr := ln.Addr().(*net.TCPAddr)

	compactPeers := make([]byte, 6)
	copy(compactPeers[0:4], peerAddr.IP.To4())
	binary.BigEndian.PutUint16(compactPeers[4:6], uint16(peerAddr.Port))

	trackerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		realBencode.Marshal(w, struct {
			Interval int    `bencode:"interval"`
			Peers    string `bencode:"peers"`
		}{Interval: 1800, Peers: string(compactPeers)})
	}))
	defer trackerSrv.Close()

	bt := bencodeTorrent{
		Announce: trackerSrv.URL,
		Info: bencodeInfo{
			PieceLength: pieceLength,
			Pieces:      piecesBlob.String(),
			Name:        "out.bin",
			Length:      total,
		},
	}
	var torrentBuf bytes.Buffer
	if err := realBencode.Marshal(&torrentBuf, bt); err != nil {
		t.Fatalf("Marshal torrent: %v", err)
	}

	torrentPath := filepath.Join(dir, "test.torrent")
	if err := os.WriteFile(torrentPath, torrentBuf.Bytes(), 0o644); err != nil {
		t.Fatalf("write torrent: %v", err)
	}

	// InfoHash must match what the peer handshake will verify against;
	// compute it the same way metainfo.Open will, so the stub peer can
	// answer the handshake with the hash the orchestrator expects.
	var infoBuf bytes.Buffer
	realBencode.Marshal(&infoBuf, bt.Info)
	infoHash := sha1.Sum(infoBuf.Bytes())

	go stubSeedPeer(t, ln, infoHash, data, pieceLength, numPieces)

	cfg := config.Default
	cfg.DestDir = dir
	cfg.ShowProgress = false
	cfg.Workers = 1
	cfg.TrackerTimeout = 5 * time.Second

	if err := Download(torrentPath, cfg); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(dir, "out.bin"))
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("downloaded file does not match original (len got=%d want=%d)", len(got), len(data))
	}
}
