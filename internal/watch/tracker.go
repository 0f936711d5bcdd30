package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tliron/commonlog"

	"github.com/dshills/scopetree/internal/document"
	"github.com/dshills/scopetree/internal/logging"
)

// OpenFunc creates the document for a file seen for the first time.
type OpenFunc func(path, text string) *document.Document

// Update describes what a Tracker did with one event.
type Update struct {
	Path     string
	Document *document.Document
	// Change is the edit applied to an existing document.
	Change  document.Change
	Opened  bool
	Removed bool
	// Events is the number of watcher events the update absorbed.
	Events int
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithQuietPeriod sets how long a file must stay quiet before Run applies
// its changes. Zero applies every event as it arrives.
func WithQuietPeriod(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.quiet = d
	}
}

// WithMaxWait bounds how long Run holds back the changes of a file that
// keeps changing. Zero means no bound.
func WithMaxWait(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.maxWait = d
	}
}

// Tracker keeps one document per followed file in sync with the disk.
//
// Editors and tools often touch a file several times per save. Run settles
// those bursts per file, so each document is reread and rescanned once per
// save instead of once per event.
type Tracker struct {
	mu   sync.Mutex
	docs map[string]*document.Document
	open OpenFunc

	quiet   time.Duration
	maxWait time.Duration

	log commonlog.Logger
}

// DefaultQuietPeriod is the quiet period used when none is configured.
const DefaultQuietPeriod = 100 * time.Millisecond

// NewTracker creates a tracker. A nil open creates plain documents.
func NewTracker(open OpenFunc, opts ...TrackerOption) *Tracker {
	if open == nil {
		open = func(path, text string) *document.Document {
			return document.New(text, document.WithPath(path))
		}
	}
	t := &Tracker{
		docs:  make(map[string]*document.Document),
		open:  open,
		quiet: DefaultQuietPeriod,
		log:   logging.GetLogger("watch"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Add reads path and starts tracking it.
func (t *Tracker) Add(path string) (*document.Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if _, _, err := t.Apply(Event{Path: absPath, Op: OpCreate}); err != nil {
		return nil, err
	}
	d, ok := t.Document(absPath)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPathNotExist, path)
	}
	return d, nil
}

// Document returns the tracked document for path.
func (t *Tracker) Document(path string) (*document.Document, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.docs[path]
	return d, ok
}

// Len returns the number of tracked documents.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.docs)
}

// Apply brings the document for ev.Path up to date with the file. It
// returns false when the document did not change.
func (t *Tracker) Apply(ev Event) (Update, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u := Update{Path: ev.Path}
	data, err := os.ReadFile(ev.Path)
	if errors.Is(err, fs.ErrNotExist) {
		// A settled burst may carry REMOVE or RENAME for a file that was
		// replaced; only a file that is really gone is dropped.
		d, tracked := t.docs[ev.Path]
		if !tracked {
			return u, false, nil
		}
		delete(t.docs, ev.Path)
		u.Document, u.Removed = d, true
		t.log.Infof("%s removed", ev.Path)
		return u, true, nil
	}
	if err != nil {
		return u, false, fmt.Errorf("reading %s: %w", ev.Path, err)
	}

	d, tracked := t.docs[ev.Path]
	if !tracked {
		d = t.open(ev.Path, string(data))
		t.docs[ev.Path] = d
		u.Document, u.Opened = d, true
		t.log.Infof("%s opened", ev.Path)
		return u, true, nil
	}

	c, changed := d.SetText(string(data))
	if !changed {
		return u, false, nil
	}
	u.Document, u.Change = d, c
	t.log.Debugf("%s: %s", ev.Path, c)
	return u, true, nil
}

// Run applies events from w until ctx is done or w is closed, passing every
// effective update to handle. Events for the same file are settled first;
// when w is closed, bursts still pending are applied before Run returns.
// Read failures and watcher errors are logged.
func (t *Tracker) Run(ctx context.Context, w Watcher, handle func(Update)) error {
	s := newSettler(t.quiet, t.maxWait)
	defer s.stop()

	errs := w.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.Events():
			if !ok {
				for _, st := range s.drain() {
					t.deliver(st, handle)
				}
				return nil
			}
			if t.quiet <= 0 {
				t.deliver(settled{event: ev, count: 1}, handle)
				continue
			}
			s.add(ev)

		case path := <-s.ready:
			if st, ok := s.take(path); ok {
				t.deliver(st, handle)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			t.log.Errorf("watch: %s", err)
		}
	}
}

func (t *Tracker) deliver(st settled, handle func(Update)) {
	u, changed, err := t.Apply(st.event)
	if err != nil {
		t.log.Errorf("%s", err)
		return
	}
	if st.count > 1 {
		t.log.Debugf("%s: settled %d events (%s)", st.event.Path, st.count, st.event.Op)
	}
	if changed && handle != nil {
		u.Events = st.count
		handle(u)
	}
}
