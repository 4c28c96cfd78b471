package cmdutil

import "sync"

// TailBuffer is an io.Writer that keeps only the last Max bytes written.
// It is safe for concurrent use, so one buffer can collect the output of
// every step of a deploy.
type TailBuffer struct {
	Max int

	mu  sync.Mutex
	buf []byte
}

// NewTailBuffer returns a buffer retaining at most max bytes.
func NewTailBuffer(max int) *TailBuffer {
	return &TailBuffer{Max: max}
}

// Write appends p, discarding the oldest bytes beyond Max.
func (t *TailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if t.Max > 0 && len(t.buf) > t.Max {
		t.buf = append([]byte(nil), t.buf[len(t.buf)-t.Max:]...)
	}
	return len(p), nil
}

// String returns the retained tail.
func (t *TailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
