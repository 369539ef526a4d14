package kernel

import (
	"sync"

	"github.com/evanphx/hatch/abi"
)

type eventKind int

const (
	eventYield eventKind = iota
	eventExit
)

// event is what a task sends back when it gives up the CPU.
type event struct {
	task *Task
	kind eventKind
	code int
}

// Scheduler is a FIFO ready queue plus the task currently on the CPU.
type Scheduler struct {
	mu      sync.Mutex
	ready   []*Task
	current *Task

	events chan event
}

func newScheduler() *Scheduler {
	return &Scheduler{
		events: make(chan event),
	}
}

func (s *Scheduler) push(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ready = append(s.ready, t)
}

// DispatchNext pops the head of the ready queue and makes it current. It
// returns nil when nothing is ready.
func (s *Scheduler) DispatchNext(nowMs uint64) *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil {
		panic("dispatch while a task holds the cpu")
	}

	if len(s.ready) == 0 {
		return nil
	}

	t := s.ready[0]
	s.ready[0] = nil
	s.ready = s.ready[1:]

	t.status = abi.Running
	t.RecordDispatch(nowMs)

	s.current = t

	return t
}

func (s *Scheduler) Current() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.current
}

// Ready reports how many tasks are waiting for the CPU.
func (s *Scheduler) Ready() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.ready)
}

func (s *Scheduler) idle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = nil
}

func (s *Scheduler) drain() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.ready
	s.ready = nil

	return out
}
