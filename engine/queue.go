// Package engine implements the shared work queue, per-peer worker
// driver, and output writer at the heart of the leecher. The queue is a
// mutex-guarded slice rather than a channel, which is what makes the
// mass-conservation and job-recycling invariants directly testable.
package engine

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gosuri/uiprogress"
	"github.com/rsmoorthy/rm/peer"
)

// Job is one piece to fetch and verify.
type Job struct {
	Index uint32
	Hash  [20]byte
	Size  uint32
}

// ErrStalledDownload is the fatal error surfaced when every worker has
// exited but jobs remain pending: a queue that cannot drain.
var ErrStalledDownload = errors.New("engine: stalled download, pending pieces but no active workers")

// Queue is the single shared mutable entity in the download: pending
// jobs, the peer address pool, and the write-progress counters, all
// guarded by one mutex. Per-worker download buffers are NOT part of
// Queue; they are goroutine-local and touched unlocked.
type Queue struct {
	mu sync.Mutex

	pending  []*Job
	peers    []peer.Peer
	nextPeer int
	written  int

	total       int
	pieceLength int
	out         io.WriterAt

	downloadedBytes int64
	activePeers     int

	bar *uiprogress.Bar
}

// NewQueue builds a Queue over jobs (one per piece, in piece-index
// order) and the discovered peer pool. out receives verified piece
// bytes at their absolute file offset. If showProgress is true, a live
// uiprogress bar is started.
func NewQueue(jobs []*Job, peers []peer.Peer, out io.WriterAt, pieceLength int, showProgress bool) *Queue {
	q := &Queue{
		pending:     append([]*Job(nil), jobs...),
		peers:       peers,
		total:       len(jobs),
		pieceLength: pieceLength,
		out:         out,
	}
	if showProgress {
		uiprogress.Start()
		bar := uiprogress.AddBar(q.total)
		bar.AppendCompleted()
		bar.AppendFunc(func(*uiprogress.Bar) string {
			q.mu.Lock()
			defer q.mu.Unlock()
			return fmt.Sprintf("pieces: %d/%d peers: %d", q.written, q.total, q.activePeers)
		})
		bar.AppendElapsed()
		q.bar = bar
	}
	return q
}

// TakePeerSlot hands out one of the discovered peers; each peer is
// handed to at most one worker for the lifetime of the download. It
// returns ok=false once every peer has been claimed.
func (q *Queue) TakePeerSlot() (peer.Peer, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.nextPeer >= len(q.peers) {
		return peer.Peer{}, false
	}
	p := q.peers[q.nextPeer]
	q.nextPeer++
	q.activePeers++
	return p, true
}

// ReleasePeerSlot records that a worker's connection has torn down,
// keeping the active-peer count (used only for progress display)
// accurate.
func (q *Queue) ReleasePeerSlot() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.activePeers--
}

// PopJob removes and returns any pending job, FIFO. ok is false when
// the queue is empty.
func (q *Queue) PopJob() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, false
	}
	j := q.pending[0]
	q.pending = q.pending[1:]
	return j, true
}

// PushJob inserts a job at the tail, recycling a failed attempt.
func (q *Queue) PushJob(j *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, j)
}

// Write persists a verified piece to its absolute offset
// (index*pieceLength) and advances the written/downloaded counters.
// All but possibly the last piece are exactly pieceLength bytes.
func (q *Queue) Write(job *Job, buf []byte) error {
	offset := int64(job.Index) * int64(q.pieceLength)

	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.out.WriteAt(buf, offset); err != nil {
		return err
	}
	q.written++
	q.downloadedBytes += int64(len(buf))
	if q.bar != nil {
		q.bar.Incr()
	}
	return nil
}

// Done reports whether every piece has been written.
func (q *Queue) Done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.written == q.total
}

// Pending reports the count of jobs waiting to be claimed, used by the
// orchestrator to detect a stall (all workers exited, jobs remain).
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Progress returns (pieces written, total pieces, bytes downloaded) as
// one consistent snapshot. The live bar is the only progress display;
// with showProgress off, no progress line is printed.
func (q *Queue) Progress() (written, total int, bytes int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.written, q.total, q.downloadedBytes
}

// Stop tears down the live progress bar, if one was started.
func (q *Queue) Stop() {
	if q.bar != nil {
		uiprogress.Stop()
	}
}
