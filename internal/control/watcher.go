// Package control wires external run control into the coordinator. Signal
// files dropped into a watched directory pause, resume, or stop a running
// session without touching the process.
package control

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Controller is the run-control surface the watcher drives. The coordinator's
// pause controller satisfies it.
type Controller interface {
	Pause()
	Resume()
	Stop()
}

// Signal file names recognized inside the watched directory.
const (
	SignalStop   = "stop"
	SignalPause  = "pause"
	SignalResume = "resume"
)

// Watcher monitors a signals directory and forwards pause/resume/stop
// signals to a Controller. A filesystem watcher gives immediate delivery;
// Poll covers the case where the watcher could not be set up.
type Watcher struct {
	dir  string
	ctrl Controller

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  bool
}

// NewWatcher creates a watcher over dir, creating it if needed. If the
// filesystem watcher cannot be established the Watcher still works through
// Poll.
func NewWatcher(dir string, ctrl Controller) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	w := &Watcher{
		dir:  dir,
		ctrl: ctrl,
		done: make(chan struct{}),
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return w, nil
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return w, nil
	}
	w.watcher = fsw
	go w.watch()

	return w, nil
}

// DefaultSignalDir returns the signal directory for a session, under the
// working directory's .testflow tree.
func DefaultSignalDir(root string) string {
	return filepath.Join(root, ".testflow", "signals")
}

func (w *Watcher) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.dispatch(filepath.Base(event.Name))
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Keep watching; Poll covers missed events.
		}
	}
}

func (w *Watcher) dispatch(name string) {
	switch name {
	case SignalStop:
		w.ctrl.Stop()
	case SignalPause:
		w.ctrl.Pause()
	case SignalResume:
		w.ctrl.Resume()
		os.Remove(filepath.Join(w.dir, SignalPause))
		os.Remove(filepath.Join(w.dir, SignalResume))
	}
}

// Degraded reports whether the filesystem watcher could not be established,
// leaving Poll as the only signal delivery path.
func (w *Watcher) Degraded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watcher == nil
}

// Poll checks the signal files directly, covering events the filesystem
// watcher may have missed. The coordinator calls it between execution groups.
func (w *Watcher) Poll() {
	if w.exists(SignalStop) {
		w.ctrl.Stop()
		return
	}
	if w.exists(SignalResume) {
		w.dispatch(SignalResume)
		return
	}
	if w.exists(SignalPause) {
		w.ctrl.Pause()
	}
}

func (w *Watcher) exists(name string) bool {
	_, err := os.Stat(filepath.Join(w.dir, name))
	return err == nil
}

// SendStop creates the stop signal file for a running session to pick up.
func SendStop(dir string) error {
	return writeSignal(dir, SignalStop)
}

// SendPause creates the pause signal file.
func SendPause(dir string) error {
	return writeSignal(dir, SignalPause)
}

// SendResume creates the resume signal file.
func SendResume(dir string) error {
	return writeSignal(dir, SignalResume)
}

func writeSignal(dir, name string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), []byte(time.Now().Format(time.RFC3339)), 0644)
}

// ClearSignals removes all signal files.
func ClearSignals(dir string) {
	os.Remove(filepath.Join(dir, SignalStop))
	os.Remove(filepath.Join(dir, SignalPause))
	os.Remove(filepath.Join(dir, SignalResume))
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
