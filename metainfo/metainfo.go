// Package metainfo parses .torrent files into a validated descriptor
// and derives the invariants (info-hash, piece hashes, piece sizes) the
// rest of the leecher depends on for correctness.
package metainfo

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rsmoorthy/rm/bencode"
)

const hashLen = 20

var (
	// ErrWrongFormat is returned by Open when path doesn't end in
	// ".torrent".
	ErrWrongFormat = errors.New("metainfo: file must have a .torrent extension")
	// ErrEmptyPieces is returned when the info dict's pieces string is
	// empty (a torrent with no data makes no sense to download).
	ErrEmptyPieces = errors.New("metainfo: pieces field is empty")
	// ErrPiecesNotMultipleOf20 is returned when the pieces string can't
	// be sliced into whole 20-byte SHA-1 hashes.
	ErrPiecesNotMultipleOf20 = errors.New("metainfo: pieces length is not a multiple of 20")
)

// fileEntry mirrors one element of a multi-file torrent's info.files
// list.
type fileEntry struct {
	Length int      `bencode:"length"`
	Path   []string `bencode:"path"`
}

// infoDict is the bencode schema for the info sub-dictionary. Field
// declaration order here is the order Marshal re-encodes it in, and
// therefore the order the info-hash is computed over — it must match
// the order real torrent files declare these keys in.
type infoDict struct {
	PieceLength int         `bencode:"piece length"`
	Pieces      string      `bencode:"pieces"`
	Length      int         `bencode:"length,omitempty"`
	Name        string      `bencode:"name"`
	Files       []fileEntry `bencode:"files,omitempty"`
}

// rawTorrent is the top-level bencode schema of a .torrent file.
type rawTorrent struct {
	Announce string   `bencode:"announce"`
	Info     infoDict `bencode:"info"`
}

// File describes one file within a multi-file torrent.
type File struct {
	Length int
	Path   []string
}

// Metainfo is the parsed, validated form of a .torrent descriptor.
type Metainfo struct {
	Announce    string
	Name        string
	PieceLength int
	InfoHash    [20]byte
	PieceHashes [][20]byte
	TotalSize   int
	Files       []File // nil for single-file torrents
}

// Open reads path, decodes it as bencode against the metainfo schema,
// and derives InfoHash/PieceHashes/TotalSize. path must end in
// ".torrent".
func Open(path string) (*Metainfo, error) {
	if !strings.EqualFold(filepath.Ext(path), ".torrent") {
		return nil, ErrWrongFormat
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f)
}

// Decode parses metainfo bencode from an arbitrary reader (Open's
// implementation, and the entry point tests use directly to avoid
// touching the filesystem).
func Decode(r io.Reader) (*Metainfo, error) {
	var raw rawTorrent
	if err := bencode.Unmarshal(r, &raw); err != nil {
		return nil, err
	}
	return raw.toMetainfo()
}

func (raw *rawTorrent) toMetainfo() (*Metainfo, error) {
	if len(raw.Info.Pieces) == 0 {
		return nil, ErrEmptyPieces
	}
	if len(raw.Info.Pieces)%hashLen != 0 {
		return nil, ErrPiecesNotMultipleOf20
	}

	infoHash, err := raw.Info.hash()
	if err != nil {
		return nil, err
	}

	pieceHashes := splitPieceHashes(raw.Info.Pieces)

	var files []File
	totalSize := raw.Info.Length
	if len(raw.Info.Files) > 0 {
		files = make([]File, len(raw.Info.Files))
		totalSize = 0
		for i, fe := range raw.Info.Files {
			files[i] = File{Length: fe.Length, Path: fe.Path}
			totalSize += fe.Length
		}
	}

	return &Metainfo{
		Announce:    raw.Announce,
		Name:        raw.Info.Name,
		PieceLength: raw.Info.PieceLength,
		InfoHash:    infoHash,
		PieceHashes: pieceHashes,
		TotalSize:   totalSize,
		Files:       files,
	}, nil
}

func splitPieceHashes(pieces string) [][20]byte {
	n := len(pieces) / hashLen
	hashes := make([][20]byte, n)
	for i := 0; i < n; i++ {
		copy(hashes[i][:], pieces[i*hashLen:(i+1)*hashLen])
	}
	return hashes
}

// hash re-encodes the info dict in its canonical field order and
// SHA-1s the result, exactly as a tracker or peer expects the
// info_hash to be computed.
func (info *infoDict) hash() ([20]byte, error) {
	var buf bytes.Buffer
	if err := bencode.Marshal(&buf, *info); err != nil {
		return [20]byte{}, err
	}
	return sha1.Sum(buf.Bytes()), nil
}

// PieceSize returns the size in bytes of piece index i: PieceLength for
// every piece but possibly the last, which is whatever remains of
// TotalSize.
func (m *Metainfo) PieceSize(i int) int {
	begin := i * m.PieceLength
	end := begin + m.PieceLength
	if end > m.TotalSize {
		end = m.TotalSize
	}
	return end - begin
}

// NumPieces returns the number of pieces this torrent is divided into.
func (m *Metainfo) NumPieces() int {
	return len(m.PieceHashes)
}

// Validate checks the cross-field invariants Open doesn't already
// enforce while parsing: the derived piece count covers the whole
// file, and every piece but the last is a full PieceLength.
func (m *Metainfo) Validate() error {
	sum := 0
	for i := 0; i < m.NumPieces(); i++ {
		size := m.PieceSize(i)
		if i < m.NumPieces()-1 && size != m.PieceLength {
			return fmt.Errorf("metainfo: piece %d has size %d, want piece length %d", i, size, m.PieceLength)
		}
		sum += size
	}
	if sum != m.TotalSize {
		return fmt.Errorf("metainfo: piece sizes sum to %d, want total size %d", sum, m.TotalSize)
	}
	return nil
}
