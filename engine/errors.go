package engine

import (
	"errors"

	"github.com/rsmoorthy/rm/wire"
)

// Transport/resource error kinds a worker's single piece attempt can
// fail with. ConnectionReset, EndOfStream, and OutOfMemory are fatal to
// the connection (the job is recycled and the peer torn down);
// IncorrectIndex/IncorrectOffset (protocol anomalies) are likewise
// fatal. Any other per-message error — in practice, a `piece` message
// too short to parse — is recoverable: the job is recycled but the same
// connection is reused for the next job. wire.ErrUnsupported never gets
// this far; downloadPiece skips such frames and keeps reading.
var (
	ErrConnectionReset = errors.New("engine: connection reset by peer")
	ErrEndOfStream     = errors.New("engine: end of stream")
	ErrOutOfMemory     = errors.New("engine: out of memory")
)

func isFatal(err error) bool {
	return errors.Is(err, ErrConnectionReset) ||
		errors.Is(err, ErrEndOfStream) ||
		errors.Is(err, ErrOutOfMemory) ||
		errors.Is(err, wire.ErrIncorrectIndex) ||
		errors.Is(err, wire.ErrIncorrectOffset)
}
