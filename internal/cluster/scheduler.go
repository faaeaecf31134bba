package cluster

import (
	"sort"
	"sync"
	"time"
)

// Scheduler runs fn once after d. It must not block the caller.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// TimerScheduler runs tasks on wall-clock timers.
type TimerScheduler struct{}

func (TimerScheduler) After(d time.Duration, fn func()) {
	if d <= 0 {
		go fn()
		return
	}
	time.AfterFunc(d, fn)
}

// ManualScheduler runs tasks only when the test advances its logical clock.
// Tasks run in order of due time, ties broken by submission order, on the
// goroutine calling Advance or RunAll.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	seq   uint64
	tasks []manualTask
}

type manualTask struct {
	due time.Duration
	seq uint64
	fn  func()
}

// NewManualScheduler returns a scheduler at logical time zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

func (s *ManualScheduler) After(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.tasks = append(s.tasks, manualTask{due: s.now + max(d, 0), seq: s.seq, fn: fn})
}

// Advance moves the logical clock forward by d and runs every task that
// became due, including ones scheduled by tasks run during this call.
// It returns the number of tasks run.
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	ran := 0
	for {
		t, ok := s.next(target)
		if !ok {
			break
		}
		t.fn()
		ran++
	}

	s.mu.Lock()
	s.now = max(s.now, target)
	s.mu.Unlock()
	return ran
}

// RunAll runs tasks until none are left, advancing the clock as needed.
func (s *ManualScheduler) RunAll() int {
	ran := 0
	for {
		t, ok := s.next(-1)
		if !ok {
			return ran
		}
		t.fn()
		ran++
	}
}

// Pending returns the number of tasks not run yet.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Now returns the logical clock.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// next pops the earliest task due at or before limit. A negative limit
// accepts any task.
func (s *ManualScheduler) next(limit time.Duration) (manualTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) == 0 {
		return manualTask{}, false
	}
	sort.Slice(s.tasks, func(i, j int) bool {
		if s.tasks[i].due != s.tasks[j].due {
			return s.tasks[i].due < s.tasks[j].due
		}
		return s.tasks[i].seq < s.tasks[j].seq
	})
	t := s.tasks[0]
	if limit >= 0 && t.due > limit {
		return manualTask{}, false
	}
	s.tasks = s.tasks[1:]
	s.now = max(s.now, t.due)
	return t, true
}
