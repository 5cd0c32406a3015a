// Package tracker builds the tracker announce URL and decodes its
// bencoded reply. The query string is hand-encoded rather than built
// with net/url (which escapes space as "+" and isn't a strict RFC 3986
// unreserved-set encoder): raw info_hash/peer_id bytes, every value
// percent-encoded with only A-Za-z0-9.-_~ passing through unescaped.
package tracker

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rsmoorthy/rm/bencode"
	"github.com/rsmoorthy/rm/peer"
)

// ErrTrackerRejected is returned when the tracker responds with a
// non-200 status, or with a bencoded "failure reason".
var ErrTrackerRejected = errors.New("tracker: request rejected")

// HTTPDoer is the collaborator interface the core actually needs from
// an HTTP client: send a request, get back a response. *http.Client
// satisfies it; tests substitute a stub.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client announces to one tracker and decodes its peer list.
type Client struct {
	HTTP    HTTPDoer
	Timeout time.Duration
}

// New builds a Client backed by a real *http.Client with the given
// timeout.
func New(timeout time.Duration) *Client {
	return &Client{HTTP: &http.Client{Timeout: timeout}, Timeout: timeout}
}

type trackerResponse struct {
	Interval      int    `bencode:"interval"`
	Peers         string `bencode:"peers"`
	FailureReason string `bencode:"failure reason,omitempty"`
}

// Announce builds the GET URL per BuildURL, performs the request, and
// decodes the compact peer list from the reply.
func (c *Client) Announce(announceURL string, infoHash, peerID [20]byte, port uint16, left int) ([]peer.Peer, error) {
	url := BuildURL(announceURL, infoHash, peerID, port, left)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrTrackerRejected, resp.StatusCode)
	}

	var tr trackerResponse
	if err := bencode.Unmarshal(resp.Body, &tr); err != nil {
		return nil, err
	}
	if tr.FailureReason != "" {
		return nil, fmt.Errorf("%w: %s", ErrTrackerRejected, tr.FailureReason)
	}

	return peer.Unmarshal([]byte(tr.Peers))
}

// BuildURL constructs the tracker GET URL:
// announce?info_hash=...&peer_id=...&port=...&uploaded=0&downloaded=0
// &compact=1&left=<left>, with every value percent-encoded per the
// RFC 3986 unreserved set. info_hash and peer_id are encoded as their
// raw 20 bytes, never hex.
func BuildURL(announce string, infoHash, peerID [20]byte, port uint16, left int) string {
	sep := "?"
	if strings.Contains(announce, "?") {
		sep = "&"
	}

	var b strings.Builder
	b.WriteString(announce)
	b.WriteString(sep)
	b.WriteString("info_hash=")
	b.WriteString(percentEncode(string(infoHash[:])))
	b.WriteString("&peer_id=")
	b.WriteString(percentEncode(string(peerID[:])))
	b.WriteString("&port=")
	b.WriteString(strconv.Itoa(int(port)))
	b.WriteString("&uploaded=0&downloaded=0&compact=1&left=")
	b.WriteString(strconv.Itoa(left))
	return b.String()
}

// percentEncode implements RFC 3986's unreserved set exactly: letters,
// digits, and `. - _ ~` pass through unchanged; everything else becomes
// %XX in uppercase hex.
func percentEncode(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z':
		return true
	case c >= 'a' && c <= 'z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '.' || c == '-' || c == '_' || c == '~':
		return true
	default:
		return false
	}
}
