package firecontrol

import "sort"

// Token cancels scheduled continuations tied to a weapon instance's
// lifetime. Switching weapons cancels the old instance's token so pending
// reloads, cycling, and burst shots are dropped instead of firing against
// stale state. A nil token never cancels.
type Token struct {
	cancelled bool
}

// Cancel marks the token; tasks carrying it will not run.
func (t *Token) Cancel() {
	if t != nil {
		t.cancelled = true
	}
}

// Cancelled reports whether the token was cancelled.
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled
}

type scheduledTask struct {
	due   float64
	seq   uint64
	token *Token
	fn    func()
}

// Scheduler runs deferred continuations on tick time. It is tick-confined:
// the owning control loop calls Advance once per tick, and tasks run on
// that same goroutine. Waiting is always a scheduled continuation, never a
// sleep.
type Scheduler struct {
	now   float64
	seq   uint64
	tasks []scheduledTask
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Now returns the scheduler's current time in seconds.
func (s *Scheduler) Now() float64 { return s.now }

// After schedules fn to run once delay seconds have elapsed. The token may
// be nil. Non-positive delays run on the next Advance, not inline.
func (s *Scheduler) After(delay float64, token *Token, fn func()) {
	if delay < 0 {
		delay = 0
	}
	s.seq++
	s.tasks = append(s.tasks, scheduledTask{
		due:   s.now + delay,
		seq:   s.seq,
		token: token,
		fn:    fn,
	})
}

// Pending returns the number of queued tasks, cancelled ones included.
func (s *Scheduler) Pending() int { return len(s.tasks) }

// Advance moves time forward and runs every due task in due order.
// Tasks scheduled by a running task are honored within the same Advance
// when already due, so zero-delay chains drain fully.
func (s *Scheduler) Advance(dt float64) {
	if dt < 0 {
		dt = 0
	}
	s.now += dt

	for {
		idx := -1
		for i := range s.tasks {
			if s.tasks[i].due > s.now {
				continue
			}
			if idx == -1 || s.tasks[i].due < s.tasks[idx].due ||
				(s.tasks[i].due == s.tasks[idx].due && s.tasks[i].seq < s.tasks[idx].seq) {
				idx = i
			}
		}
		if idx == -1 {
			return
		}

		task := s.tasks[idx]
		s.tasks = append(s.tasks[:idx], s.tasks[idx+1:]...)
		if task.token.Cancelled() {
			continue
		}
		task.fn()
	}
}

// Drain removes all pending tasks without running them.
func (s *Scheduler) Drain() {
	s.tasks = s.tasks[:0]
}

// dueTimes is a test helper surface: the sorted due times of pending tasks.
func (s *Scheduler) dueTimes() []float64 {
	out := make([]float64, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.due)
	}
	sort.Float64s(out)
	return out
}
