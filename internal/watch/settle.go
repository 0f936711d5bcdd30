package watch

import (
	"slices"
	"time"
)

// burst is the pending state of one file that is still changing.
type burst struct {
	event Event
	count int
	first time.Time
	timer *time.Timer
}

// settled is a burst whose file has stopped changing.
type settled struct {
	event Event
	count int
}

// settler groups the events of each file into bursts. A burst settles once
// its file has been quiet for the quiet period, or maxWait after it began
// when maxWait is positive.
//
// Only the goroutine that owns the settler calls add, take and drain; the
// timers merely post the path on ready.
type settler struct {
	quiet   time.Duration
	maxWait time.Duration
	pending map[string]*burst
	ready   chan string
	done    chan struct{}
	now     func() time.Time
}

func newSettler(quiet, maxWait time.Duration) *settler {
	return &settler{
		quiet:   quiet,
		maxWait: maxWait,
		pending: make(map[string]*burst),
		ready:   make(chan string),
		done:    make(chan struct{}),
		now:     time.Now,
	}
}

// add records ev and restarts its file's quiet period.
func (s *settler) add(ev Event) {
	b, ok := s.pending[ev.Path]
	if !ok {
		path := ev.Path
		b = &burst{event: ev, first: s.now()}
		b.timer = time.AfterFunc(s.wait(b), func() { s.signal(path) })
		b.count = 1
		s.pending[path] = b
		return
	}
	b.event.Op |= ev.Op
	b.event.Timestamp = ev.Timestamp
	b.count++
	b.timer.Reset(s.wait(b))
}

// wait returns how long b may still wait for its file to go quiet.
func (s *settler) wait(b *burst) time.Duration {
	if s.maxWait <= 0 {
		return s.quiet
	}
	return max(min(s.quiet, s.maxWait-s.now().Sub(b.first)), 0)
}

func (s *settler) signal(path string) {
	select {
	case s.ready <- path:
	case <-s.done:
	}
}

// take removes the burst of path. A timer that fired for a burst already
// taken yields false.
func (s *settler) take(path string) (settled, bool) {
	b, ok := s.pending[path]
	if !ok {
		return settled{}, false
	}
	b.timer.Stop()
	delete(s.pending, path)
	return settled{event: b.event, count: b.count}, true
}

// drain removes every pending burst, ordered by path.
func (s *settler) drain() []settled {
	paths := make([]string, 0, len(s.pending))
	for path := range s.pending {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	out := make([]settled, 0, len(paths))
	for _, path := range paths {
		st, _ := s.take(path)
		out = append(out, st)
	}
	return out
}

// stop cancels every timer and releases timers blocked in signal.
func (s *settler) stop() {
	for _, b := range s.pending {
		b.timer.Stop()
	}
	close(s.done)
}
