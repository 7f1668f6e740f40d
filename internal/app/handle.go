package app

import (
	"context"
	"os"
	"sync"
)

// Handle is the cancellation handle of the single active job. It owns the
// context cancel function that tears down the transfer and, for extraction
// jobs, a reference to the live subprocess. Completion handlers consult the
// cancelled flag to reclassify an aborted operation as a cancellation rather
// than a generic error.
type Handle struct {
	mu        sync.Mutex
	cancelled bool
	cancel    context.CancelFunc
	proc      *os.Process
}

// NewHandle wraps the cancel function of the job's context.
func NewHandle(cancel context.CancelFunc) *Handle {
	return &Handle{cancel: cancel}
}

// Cancel flags the handle and eagerly tears down whatever sub-resources are
// currently open. Calling it more than once is harmless.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.cancelled {
		h.mu.Unlock()
		return
	}
	h.cancelled = true
	proc := h.proc
	h.mu.Unlock()

	if proc != nil {
		_ = proc.Kill()
	}
	if h.cancel != nil {
		h.cancel()
	}
}

// Cancelled reports whether Cancel was requested.
func (h *Handle) Cancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// AttachProcess registers a spawned subprocess with the handle. If the handle
// was cancelled before the process came up, the process is killed right away.
func (h *Handle) AttachProcess(proc *os.Process) {
	h.mu.Lock()
	h.proc = proc
	cancelled := h.cancelled
	h.mu.Unlock()

	if cancelled && proc != nil {
		_ = proc.Kill()
	}
}
