package cmdutil

import (
	"io"
	"sync"
)

// Redactor is an io.Writer that replaces secrets before passing output on.
// A secret may arrive split across writes, so the last len(secret)-1 bytes
// are held back until more output or Flush arrives.
type Redactor struct {
	w       io.Writer
	secrets []string
	hold    int

	mu      sync.Mutex
	pending []byte
}

// NewRedactor wraps w. Empty secrets are ignored.
func NewRedactor(w io.Writer, secrets []string) *Redactor {
	r := &Redactor{w: w}
	for _, s := range secrets {
		if s == "" {
			continue
		}
		r.secrets = append(r.secrets, s)
		if len(s)-1 > r.hold {
			r.hold = len(s) - 1
		}
	}
	return r
}

// Write redacts p together with any held-back bytes and forwards all but
// the last hold bytes.
func (r *Redactor) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.secrets) == 0 {
		return r.w.Write(p)
	}

	clean := SanitizeOutput(append(r.pending, p...), r.secrets)
	cut := len(clean) - r.hold
	if cut <= 0 {
		r.pending = clean
		return len(p), nil
	}

	r.pending = append([]byte(nil), clean[cut:]...)
	if _, err := r.w.Write(clean[:cut]); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Flush forwards the held-back bytes. Call it once the output is complete.
func (r *Redactor) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.pending) == 0 {
		return nil
	}
	clean := SanitizeOutput(r.pending, r.secrets)
	r.pending = nil
	_, err := r.w.Write(clean)
	return err
}
