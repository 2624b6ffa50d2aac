package relay

import (
	"errors"
	"io"
	"sync"
	"time"
)

// ErrIdleTimeout is returned by an idle reader whose source stalled.
var ErrIdleTimeout = errors.New("upstream idle timeout")

// idleReader closes the wrapped body when a single Read blocks for longer
// than d. The timer runs only while a Read is in flight, so time the caller
// spends between reads (writing to a slow client) does not count.
type idleReader struct {
	rc io.ReadCloser
	d  time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	expired bool
}

// NewIdleReader wraps rc so that a stall longer than d closes it and makes the
// pending and later Reads fail with ErrIdleTimeout. d <= 0 returns rc unchanged.
func NewIdleReader(rc io.ReadCloser, d time.Duration) io.ReadCloser {
	if d <= 0 {
		return rc
	}
	ir := &idleReader{rc: rc, d: d}
	ir.timer = time.AfterFunc(d, ir.expire)
	ir.timer.Stop()
	return ir
}

func (ir *idleReader) expire() {
	ir.mu.Lock()
	ir.expired = true
	ir.mu.Unlock()
	_ = ir.rc.Close()
}

func (ir *idleReader) Read(p []byte) (int, error) {
	ir.mu.Lock()
	if ir.expired {
		ir.mu.Unlock()
		return 0, ErrIdleTimeout
	}
	ir.timer.Reset(ir.d)
	ir.mu.Unlock()

	n, err := ir.rc.Read(p)

	ir.mu.Lock()
	ir.timer.Stop()
	expired := ir.expired
	ir.mu.Unlock()
	if expired {
		return n, ErrIdleTimeout
	}
	return n, err
}

func (ir *idleReader) Close() error {
	ir.timer.Stop()
	return ir.rc.Close()
}
