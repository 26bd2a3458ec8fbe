package tactile

import "sync"

// defaultQueueLimit bounds buffered, unread output.
const defaultQueueLimit = 1 << 20

// outputQueue buffers child output between the reader goroutine and
// Execute. Writes never block: when the limit is exceeded the oldest bytes
// are dropped.
type outputQueue struct {
	mu      sync.Mutex
	buf     []byte
	limit   int
	dropped int
	notify  chan struct{}
}

func newOutputQueue(limit int) *outputQueue {
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	return &outputQueue{limit: limit, notify: make(chan struct{}, 1)}
}

func (q *outputQueue) push(p []byte) {
	q.mu.Lock()
	q.buf = append(q.buf, p...)
	if over := len(q.buf) - q.limit; over > 0 {
		q.buf = append(q.buf[:0], q.buf[over:]...)
		q.dropped += over
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// drain returns and clears everything buffered.
func (q *outputQueue) drain() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil
	}
	out := q.buf
	q.buf = nil
	return out
}

// signal fires (coalesced) after each push.
func (q *outputQueue) signal() <-chan struct{} {
	return q.notify
}
