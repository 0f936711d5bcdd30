package watch

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tliron/commonlog"

	"github.com/dshills/scopetree/internal/logging"
)

// FSNotifyWatcher follows R sources through fsnotify.
//
// fsnotify only watches directories. A watched file is followed through its
// parent directory, so editors that save by renaming a temporary file over
// it keep being followed. A watched directory is a tree: every non-hidden
// subdirectory is followed too, including ones created later, whose files
// are reported as created.
type FSNotifyWatcher struct {
	mu     sync.Mutex
	fsw    *fsnotify.Watcher
	config Config

	files map[string]bool
	// trees maps each watched directory to the directories it follows.
	trees map[string][]string
	// inTree counts the trees following a directory.
	inTree map[string]int
	// refs counts the reasons an fsnotify directory watch exists.
	refs map[string]int

	events  chan Event
	errors  chan error
	closed  bool
	done    chan struct{}
	stopped chan struct{}

	log commonlog.Logger
}

// NewFSNotifyWatcher creates a watcher and starts forwarding events.
func NewFSNotifyWatcher(opts ...Option) (*FSNotifyWatcher, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	config.BufferSize = max(config.BufferSize, 1)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &FSNotifyWatcher{
		fsw:     fsw,
		config:  config,
		files:   make(map[string]bool),
		trees:   make(map[string][]string),
		inTree:  make(map[string]int),
		refs:    make(map[string]int),
		events:  make(chan Event, config.BufferSize),
		errors:  make(chan error, config.BufferSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		log:     logging.GetLogger("watch"),
	}
	go w.run()
	return w, nil
}

// Watch follows a file, or a directory tree.
func (w *FSNotifyWatcher) Watch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(absPath)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrPathNotExist, path)
	}
	if err != nil {
		return err
	}
	if _, ok := w.trees[absPath]; ok || w.files[absPath] {
		return ErrAlreadyWatching
	}

	if !info.IsDir() {
		if err := w.addDir(filepath.Dir(absPath)); err != nil {
			return err
		}
		w.files[absPath] = true
		w.log.Debugf("watching %s", absPath)
		return nil
	}
	w.trees[absPath] = nil
	if _, err := w.addTree(absPath, absPath); err != nil {
		w.dropTree(absPath)
		return err
	}
	w.log.Debugf("watching %s (%d directories)", absPath, len(w.trees[absPath]))
	return nil
}

// Unwatch stops following a path passed to Watch.
func (w *FSNotifyWatcher) Unwatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if w.files[absPath] {
		delete(w.files, absPath)
		return w.dropDir(filepath.Dir(absPath))
	}
	if _, ok := w.trees[absPath]; ok {
		return w.dropTree(absPath)
	}
	return ErrNotWatching
}

// IsWatching reports whether path was passed to Watch.
func (w *FSNotifyWatcher) IsWatching(path string) bool {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, tree := w.trees[absPath]
	return tree || w.files[absPath]
}

// Events returns the event channel.
func (w *FSNotifyWatcher) Events() <-chan Event {
	return w.events
}

// Errors returns the error channel.
func (w *FSNotifyWatcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher and closes its channels.
func (w *FSNotifyWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()

	<-w.stopped
	close(w.events)
	close(w.errors)
	return w.fsw.Close()
}

// addDir adds one reason to watch dir.
func (w *FSNotifyWatcher) addDir(dir string) error {
	if w.refs[dir] == 0 {
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
	}
	w.refs[dir]++
	return nil
}

// dropDir removes one reason to watch dir. A directory that was deleted has
// already lost its watch.
func (w *FSNotifyWatcher) dropDir(dir string) error {
	if w.refs[dir]--; w.refs[dir] > 0 {
		return nil
	}
	delete(w.refs, dir)
	if err := w.fsw.Remove(dir); err != nil && !errors.Is(err, fsnotify.ErrNonExistentWatch) {
		return err
	}
	return nil
}

// addTree follows dir and its non-hidden subdirectories as part of the tree
// rooted at root and returns the matching files found in them.
func (w *FSNotifyWatcher) addTree(root, dir string) ([]string, error) {
	var found []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if w.config.matches(path) {
				found = append(found, path)
			}
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.addDir(path); err != nil {
			return err
		}
		w.trees[root] = append(w.trees[root], path)
		w.inTree[path]++
		return nil
	})
	return found, err
}

// dropTree stops following every directory of the tree rooted at root.
func (w *FSNotifyWatcher) dropTree(root string) error {
	var first error
	for _, dir := range w.trees[root] {
		if err := w.forget(dir); err != nil && first == nil {
			first = err
		}
	}
	delete(w.trees, root)
	return first
}

func (w *FSNotifyWatcher) forget(dir string) error {
	if w.inTree[dir]--; w.inTree[dir] <= 0 {
		delete(w.inTree, dir)
	}
	return w.dropDir(dir)
}

// rootOf returns a tree that follows dir.
func (w *FSNotifyWatcher) rootOf(dir string) (string, bool) {
	if w.inTree[dir] == 0 {
		return "", false
	}
	for root, dirs := range w.trees {
		if slices.Contains(dirs, dir) {
			return root, true
		}
	}
	return "", false
}

// grow follows a directory created inside a tree and reports the matching
// files already in it as created. It returns false if path is not a
// directory.
func (w *FSNotifyWatcher) grow(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	if isHidden(filepath.Base(path)) {
		return true
	}

	w.mu.Lock()
	root, ok := w.rootOf(filepath.Dir(path))
	var found []string
	if ok && w.inTree[path] == 0 {
		found, err = w.addTree(root, path)
	}
	w.mu.Unlock()

	if err != nil {
		w.sendError(fmt.Errorf("watch %s: %w", path, err))
	}
	for _, f := range found {
		w.sendEvent(Event{Path: f, Op: OpCreate, Timestamp: time.Now()})
	}
	return true
}

// prune stops following a tree directory that was removed or renamed, along
// with everything below it. It returns false if path was not followed.
func (w *FSNotifyWatcher) prune(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inTree[path] == 0 {
		return false
	}
	below := path + string(filepath.Separator)
	for root, dirs := range w.trees {
		kept := dirs[:0]
		for _, dir := range dirs {
			if dir != path && !strings.HasPrefix(dir, below) {
				kept = append(kept, dir)
				continue
			}
			if err := w.forget(dir); err != nil {
				w.log.Debugf("unwatch %s: %s", dir, err)
			}
		}
		w.trees[root] = kept
	}
	return true
}

// follows reports whether events for the file path are wanted.
func (w *FSNotifyWatcher) follows(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[path] || w.inTree[filepath.Dir(path)] > 0 && w.config.matches(path)
}

func (w *FSNotifyWatcher) run() {
	defer close(w.stopped)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.sendError(err)
		}
	}
}

func (w *FSNotifyWatcher) handle(ev fsnotify.Event) {
	op := convertOp(ev.Op)
	switch {
	case op == 0:
		return
	case op.Has(OpCreate) && w.grow(ev.Name):
		return
	case op.Gone() && w.prune(ev.Name):
		return
	case w.follows(ev.Name):
		w.sendEvent(Event{Path: ev.Name, Op: op, Timestamp: time.Now()})
	}
}

// convertOp converts fsnotify.Op to Op. Chmod is not reported.
func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	if fsOp.Has(fsnotify.Create) {
		op |= OpCreate
	}
	if fsOp.Has(fsnotify.Write) {
		op |= OpWrite
	}
	if fsOp.Has(fsnotify.Remove) {
		op |= OpRemove
	}
	if fsOp.Has(fsnotify.Rename) {
		op |= OpRename
	}
	return op
}

func (w *FSNotifyWatcher) sendEvent(ev Event) {
	select {
	case w.events <- ev:
	default:
		w.log.Warningf("event channel full, dropping %s %s", ev.Op, ev.Path)
	}
}

func (w *FSNotifyWatcher) sendError(err error) {
	select {
	case w.errors <- err:
	default:
		w.log.Errorf("error channel full, dropping: %s", err)
	}
}

func isHidden(name string) bool {
	return len(name) > 1 && strings.HasPrefix(name, ".")
}

var _ Watcher = (*FSNotifyWatcher)(nil)
