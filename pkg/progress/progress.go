package progress

import (
	"sync"
	"time"
)

// DefaultLineLimit bounds the tail buffer kept per task
const DefaultLineLimit = 200

// Snapshot is a point-in-time view of a task's live progress
type Snapshot struct {
	CurrentStep string
	Lines       []string
	Finished    bool
}

type entry struct {
	currentStep string
	lines       []string
	next        int
	full        bool
	finished    bool
	finishedAt  time.Time
}

// Bus tracks live progress of running tasks in memory. Each task has a single
// writer (its worker goroutine); reads come from the API. Entries for finished
// tasks are kept for the retention window so a final poll still sees the last
// step, then a background sweeper drops them.
type Bus struct {
	mu        sync.RWMutex
	tasks     map[string]*entry
	lineLimit int
	retention time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewBus creates a progress bus keeping finished entries for retention
func NewBus(retention time.Duration) *Bus {
	return &Bus{
		tasks:     make(map[string]*entry),
		lineLimit: DefaultLineLimit,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start launches the retention sweeper
func (b *Bus) Start() {
	go b.sweep()
}

// Stop halts the sweeper
func (b *Bus) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Begin registers a task as running
func (b *Bus) Begin(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks[taskID] = &entry{lines: make([]string, b.lineLimit)}
}

// Append records one output line. Step updates the current step when non-empty.
func (b *Bus) Append(taskID, line, step string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.tasks[taskID]
	if !ok {
		return
	}
	if step != "" {
		e.currentStep = step
	}
	e.lines[e.next] = line
	e.next++
	if e.next == len(e.lines) {
		e.next = 0
		e.full = true
	}
}

// Finish marks a task's entry for retention-based cleanup
func (b *Bus) Finish(taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if e, ok := b.tasks[taskID]; ok {
		e.finished = true
		e.finishedAt = time.Now()
	}
}

// Get returns the task's progress snapshot, or nil if unknown or swept
func (b *Bus) Get(taskID string) *Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.tasks[taskID]
	if !ok {
		return nil
	}
	return &Snapshot{
		CurrentStep: e.currentStep,
		Lines:       e.tail(),
		Finished:    e.finished,
	}
}

// CurrentStep returns the last seen playbook step for a task
func (b *Bus) CurrentStep(taskID string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if e, ok := b.tasks[taskID]; ok {
		return e.currentStep
	}
	return ""
}

func (e *entry) tail() []string {
	if !e.full {
		out := make([]string, e.next)
		copy(out, e.lines[:e.next])
		return out
	}
	out := make([]string, 0, len(e.lines))
	out = append(out, e.lines[e.next:]...)
	out = append(out, e.lines[:e.next]...)
	return out
}

func (b *Bus) sweep() {
	interval := b.retention / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopCh:
			return
		case now := <-ticker.C:
			b.mu.Lock()
			for id, e := range b.tasks {
				if e.finished && now.Sub(e.finishedAt) >= b.retention {
					delete(b.tasks, id)
				}
			}
			b.mu.Unlock()
		}
	}
}
