package executor

import (
	"os/exec"
	"sync"
	"syscall"
	"time"
)

type procHandle struct {
	cmd    *exec.Cmd
	done   chan struct{}
	reason string
}

// CancelRegistry maps running task IDs to their subprocess handles. Workers
// register on spawn and deregister after Finish; cancel and shutdown callers
// terminate through it.
type CancelRegistry struct {
	mu    sync.Mutex
	procs map[string]*procHandle
}

// NewCancelRegistry creates an empty registry
func NewCancelRegistry() *CancelRegistry {
	return &CancelRegistry{procs: make(map[string]*procHandle)}
}

// Register records a running subprocess for a task
func (r *CancelRegistry) Register(taskID string, cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[taskID] = &procHandle{cmd: cmd, done: make(chan struct{})}
}

// MarkExited signals that the task's subprocess has been reaped, releasing
// any pending forceful-kill timer.
func (r *CancelRegistry) MarkExited(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.procs[taskID]; ok {
		close(h.done)
	}
}

// Deregister removes the task's handle
func (r *CancelRegistry) Deregister(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.procs, taskID)
}

// Reason returns the termination reason recorded for a task, or "" if no
// termination was requested.
func (r *CancelRegistry) Reason(taskID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.procs[taskID]; ok {
		return h.reason
	}
	return ""
}

// Running reports whether a task has a registered subprocess
func (r *CancelRegistry) Running(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.procs[taskID]
	return ok
}

// Len returns the number of registered subprocesses
func (r *CancelRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.procs)
}

// Terminate requests a graceful stop of the task's subprocess: SIGTERM now,
// SIGKILL if the process is still alive after grace. Returns false when the
// task has no registered subprocess.
func (r *CancelRegistry) Terminate(taskID, reason string, grace time.Duration) bool {
	r.mu.Lock()
	h, ok := r.procs[taskID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if h.reason == "" {
		h.reason = reason
	}
	r.mu.Unlock()

	r.signal(h, syscall.SIGTERM)
	go func() {
		select {
		case <-h.done:
		case <-time.After(grace):
			r.signal(h, syscall.SIGKILL)
		}
	}()
	return true
}

// TerminateAll terminates every registered subprocess
func (r *CancelRegistry) TerminateAll(reason string, grace time.Duration) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.procs))
	for id := range r.procs {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Terminate(id, reason, grace)
	}
}

func (r *CancelRegistry) signal(h *procHandle, sig syscall.Signal) {
	if h.cmd.Process == nil {
		return
	}
	// Signal the whole process group: the runner forks ansible children that
	// must die with it or they keep the output pipe open. Fall back to the
	// direct child if the process never became a group leader. A process
	// that already exited makes both calls fail, which is fine.
	if err := syscall.Kill(-h.cmd.Process.Pid, sig); err != nil {
		_ = h.cmd.Process.Signal(sig)
	}
}
