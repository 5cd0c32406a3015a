package engine

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rsmoorthy/rm/conn"
	"github.com/rsmoorthy/rm/wire"
)

const (
	maxBacklog    = 5
	maxBlock      = 16 * 1024
	pieceDeadline = 30 * time.Second
)

// Dialer abstracts conn.Connect for tests that want to substitute an
// in-process stub peer without a real TCP dial.
type Dialer func(addr string, infoHash, peerID [20]byte) (*conn.Conn, error)

// RunWorker drives one peer connection for the lifetime of the
// download: take a peer slot, connect, then repeatedly pop a job,
// download it, verify it, and either recycle it or hand it to the
// queue's writer. It returns when the peer slot pool is exhausted, the
// connection tears down fatally, or the queue drains.
func RunWorker(q *Queue, dial Dialer, infoHash, peerID [20]byte) {
	p, ok := q.TakePeerSlot()
	if !ok {
		return
	}
	defer q.ReleasePeerSlot()

	c, err := dial(p.String(), infoHash, peerID)
	if err != nil {
		return
	}
	defer c.Close()

	c.Send(wire.Interested)

	for {
		job, ok := q.PopJob()
		if !ok {
			return
		}

		if c.Bitfield != nil && !c.Bitfield.Has(int(job.Index)) {
			q.PushJob(job)
			continue
		}

		buf, err := downloadPiece(c, job)
		if err != nil {
			q.PushJob(job)
			if isFatal(err) {
				return
			}
			continue
		}

		if sha1.Sum(buf) != job.Hash {
			q.PushJob(job)
			continue
		}

		c.SendHave(job.Index)
		if err := q.Write(job, buf); err != nil {
			// The output file itself is broken; nothing further this
			// worker does can help, so give up the connection too.
			q.PushJob(job)
			return
		}
	}
}

// downloadPiece implements the pipelined block-request loop: up to
// maxBacklog outstanding maxBlock-sized requests, draining messages
// until the whole piece has arrived.
func downloadPiece(c *conn.Conn, job *Job) (buf []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrOutOfMemory, r)
		}
	}()

	buf = make([]byte, job.Size)

	c.SetDeadline(time.Now().Add(pieceDeadline))
	defer c.SetDeadline(time.Time{})

	var downloaded, requested, backlog uint32
	size := job.Size

	for downloaded < size {
		if !c.Choked {
			for backlog < maxBacklog && requested < size {
				block := uint32(maxBlock)
				if size-requested < block {
					block = size - requested
				}
				if err := c.SendRequest(job.Index, requested, block); err != nil {
					return nil, fmt.Errorf("%w: %v", ErrConnectionReset, err)
				}
				backlog++
				requested += block
			}
		}

		msg, rerr := c.Read()
		if rerr != nil {
			if errors.Is(rerr, wire.ErrUnsupported) {
				continue
			}
			return nil, classifyReadErr(rerr)
		}
		if msg == nil {
			continue // keep-alive
		}

		switch msg.ID {
		case wire.Choke:
			c.ApplyState(msg)
		case wire.Unchoke:
			c.ApplyState(msg)
		case wire.Have:
			c.ApplyState(msg)
		case wire.Piece:
			n, perr := wire.ParsePiece(job.Index, buf, msg)
			if perr != nil {
				return nil, perr
			}
			downloaded += uint32(n)
			if backlog > 0 {
				backlog--
			}
		default:
			// interested/not_interested/request/cancel/bitfield mid-stream: ignore.
		}
	}

	return buf, nil
}

func classifyReadErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrEndOfStream, err)
	}
	return fmt.Errorf("%w: %v", ErrConnectionReset, err)
}
