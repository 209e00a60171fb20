// Package scheduler queues dirty units of render work and runs them
// synchronously, one pass at a time, until the queue settles.
package scheduler

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// DefaultMaxPasses bounds how many passes one Flush may take before it
// gives up on a queue that keeps refilling itself.
const DefaultMaxPasses = 100

// ErrTooManyPasses is returned by Flush when work kept marking more work
// dirty past the pass limit.
var ErrTooManyPasses = errors.New("scheduler: too many passes")

// RunFunc is the work a fiber does when it is flushed.
type RunFunc func()

// ErrorHandler handles a panic raised by a fiber's work.
// Returns true to keep the fiber, false to remove it.
type ErrorHandler func(fiber *Fiber, err error) bool

// Fiber is one unit of render work, typically a mounted tree.
type Fiber struct {
	id    uint32
	name  string
	run   RunFunc
	dirty bool

	onError  ErrorHandler
	userData interface{}
}

// debugLog is set by the host
var debugLog func(args ...interface{})

// SetDebugLog sets the debug logging function
func SetDebugLog(fn func(args ...interface{})) {
	debugLog = fn
}

// Scheduler holds fibers and the queue of the dirty ones. MarkDirty may be
// called from any goroutine; Flush runs the work on the caller's goroutine.
type Scheduler struct {
	mu       sync.Mutex
	fibers   map[uint32]*Fiber
	nextID   uint32
	queue    []*Fiber
	flushing bool

	// MaxPasses overrides DefaultMaxPasses when positive.
	MaxPasses int

	defaultError ErrorHandler
}

// NewScheduler creates a new scheduler instance
func NewScheduler() *Scheduler {
	return &Scheduler{
		fibers: make(map[uint32]*Fiber),
		nextID: 1,
	}
}

// SetDefaultErrorHandler sets the error handler given to new fibers
func (s *Scheduler) SetDefaultErrorHandler(handler ErrorHandler) {
	s.defaultError = handler
}

// CreateFiber registers work under name. The fiber starts clean.
func (s *Scheduler) CreateFiber(name string, run RunFunc) *Fiber {
	s.mu.Lock()
	defer s.mu.Unlock()

	fiber := &Fiber{
		id:      s.nextID,
		name:    name,
		run:     run,
		onError: s.defaultError,
	}
	s.nextID++
	s.fibers[fiber.id] = fiber
	return fiber
}

// RemoveFiber removes a fiber; a queued run is dropped.
func (s *Scheduler) RemoveFiber(fiber *Fiber) {
	if fiber == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(fiber)
}

func (s *Scheduler) removeLocked(fiber *Fiber) {
	delete(s.fibers, fiber.id)
	for i, f := range s.queue {
		if f == fiber {
			s.queue = append(s.queue[:i:i], s.queue[i+1:]...)
			break
		}
	}
	fiber.dirty = false
}

// MarkDirty queues fiber for the next pass. Marking an already queued
// fiber does nothing.
func (s *Scheduler) MarkDirty(fiber *Fiber) {
	if fiber == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.fibers[fiber.id]; !ok {
		if debugLog != nil {
			debugLog("[Scheduler] MarkDirty on removed fiber", fiber.id)
		}
		return
	}
	if fiber.dirty {
		if debugLog != nil {
			debugLog("[Scheduler] Fiber", fiber.id, "already dirty")
		}
		return
	}
	fiber.dirty = true
	s.queue = append(s.queue, fiber)
	if debugLog != nil {
		debugLog("[Scheduler] Fiber", fiber.id, "marked dirty")
	}
}

// Pending returns the number of queued fibers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Flush runs queued fibers until none are dirty and returns the number of
// passes taken. Work that marks fibers dirty, including its own, is picked
// up by the next pass. A Flush called from inside a running fiber returns
// immediately; the outer Flush finishes the job.
func (s *Scheduler) Flush() (int, error) {
	s.mu.Lock()
	if s.flushing {
		s.mu.Unlock()
		return 0, nil
	}
	s.flushing = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.flushing = false
		s.mu.Unlock()
	}()

	limit := s.MaxPasses
	if limit <= 0 {
		limit = DefaultMaxPasses
	}
	passes := 0
	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		for _, f := range batch {
			f.dirty = false
		}
		s.mu.Unlock()

		if len(batch) == 0 {
			return passes, nil
		}
		if passes == limit {
			return passes, fmt.Errorf("%w (%d)", ErrTooManyPasses, limit)
		}
		passes++
		if debugLog != nil {
			debugLog("[Scheduler] Pass", passes, "with", len(batch), "fibers")
		}
		for _, f := range batch {
			s.processFiber(f)
		}
	}
}

// processFiber runs a single fiber with panic recovery
func (s *Scheduler) processFiber(fiber *Fiber) {
	defer func() {
		if r := recover(); r != nil {
			s.handleFiberError(fiber, r)
		}
	}()
	if debugLog != nil {
		debugLog("[Scheduler] Running fiber", fiber.id, fiber.name)
	}
	fiber.run()
}

// handleFiberError handles a panic during a fiber's run
func (s *Scheduler) handleFiberError(fiber *Fiber, r interface{}) {
	err := fmt.Errorf("fiber %d (%s) panic: %v\n%s", fiber.id, fiber.name, r, debug.Stack())

	keep := false
	if fiber.onError != nil {
		keep = fiber.onError(fiber, err)
	}
	if !keep {
		s.RemoveFiber(fiber)
	}
}

// GetFiber returns a fiber by ID
func (s *Scheduler) GetFiber(id uint32) *Fiber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fibers[id]
}

// FiberCount returns the number of active fibers
func (s *Scheduler) FiberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fibers)
}

// ID returns the fiber's unique ID
func (f *Fiber) ID() uint32 {
	return f.id
}

// Name returns the name the fiber was created with
func (f *Fiber) Name() string {
	return f.name
}

// SetUserData sets custom data on a fiber
func (f *Fiber) SetUserData(data interface{}) {
	f.userData = data
}

// GetUserData gets custom data from a fiber
func (f *Fiber) GetUserData() interface{} {
	return f.userData
}

// SetErrorHandler sets a custom error handler for this fiber
func (f *Fiber) SetErrorHandler(handler ErrorHandler) {
	f.onError = handler
}
