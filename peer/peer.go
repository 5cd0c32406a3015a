// Package peer decodes the tracker's compact peer list (BEP 23) and
// represents a single peer address.
package peer

import (
	"encoding/binary"
	"errors"
	"net"
	"strconv"
)

// ErrMalformed is returned by Unmarshal when the input length is not a
// multiple of 6 bytes.
var ErrMalformed = errors.New("peer: malformed compact peer list")

const addrSize = 6

// Peer is one tracker-advertised peer address. Set membership is by
// address: two Peers with equal IP and Port are the same peer.
type Peer struct {
	IP   net.IP
	Port uint16
}

// String formats the peer as a dialable host:port string.
func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), strconv.Itoa(int(p.Port)))
}

// Key returns a comparable identity for set/map membership.
func (p Peer) Key() string {
	return p.String()
}

// Unmarshal decodes a compact peer list: 4 bytes of big-endian IPv4
// followed by 2 bytes of big-endian port, repeated. A record whose
// address fails to parse is dropped rather than failing the whole
// batch; the batch only fails if its total length isn't a multiple of
// 6.
func Unmarshal(raw []byte) ([]Peer, error) {
	if len(raw)%addrSize != 0 {
		return nil, ErrMalformed
	}

	n := len(raw) / addrSize
	peers := make([]Peer, 0, n)
	for i := 0; i < n; i++ {
		offset := i * addrSize
		ipBytes := raw[offset : offset+4]
		ip := net.IPv4(ipBytes[0], ipBytes[1], ipBytes[2], ipBytes[3])
		if ip == nil {
			continue
		}
		port := binary.BigEndian.Uint16(raw[offset+4 : offset+6])
		peers = append(peers, Peer{IP: ip, Port: port})
	}
	return peers, nil
}
