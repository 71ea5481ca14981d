package control

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// recordingController counts the control calls it receives.
type recordingController struct {
	mu      sync.Mutex
	pauses  int
	resumes int
	stops   int
}

func (c *recordingController) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauses++
}

func (c *recordingController) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resumes++
}

func (c *recordingController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
}

func (c *recordingController) counts() (pauses, resumes, stops int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pauses, c.resumes, c.stops
}

func TestPollDispatchesSignals(t *testing.T) {
	dir := t.TempDir()
	ctrl := &recordingController{}
	w := &Watcher{dir: dir, ctrl: ctrl}

	w.Poll()
	if p, r, s := ctrl.counts(); p+r+s != 0 {
		t.Fatalf("empty dir dispatched (%d, %d, %d)", p, r, s)
	}

	if err := SendPause(dir); err != nil {
		t.Fatalf("SendPause: %v", err)
	}
	w.Poll()
	if p, _, _ := ctrl.counts(); p != 1 {
		t.Errorf("pauses = %d, want 1", p)
	}

	if err := SendResume(dir); err != nil {
		t.Fatalf("SendResume: %v", err)
	}
	w.Poll()
	if _, r, _ := ctrl.counts(); r != 1 {
		t.Errorf("resumes = %d, want 1", r)
	}
	// Resume consumes both the pause and resume files.
	if _, err := os.Stat(filepath.Join(dir, SignalPause)); !os.IsNotExist(err) {
		t.Error("pause file survived resume")
	}
	if _, err := os.Stat(filepath.Join(dir, SignalResume)); !os.IsNotExist(err) {
		t.Error("resume file survived resume")
	}
}

func TestPollStopTakesPrecedence(t *testing.T) {
	dir := t.TempDir()
	ctrl := &recordingController{}
	w := &Watcher{dir: dir, ctrl: ctrl}

	if err := SendPause(dir); err != nil {
		t.Fatalf("SendPause: %v", err)
	}
	if err := SendStop(dir); err != nil {
		t.Fatalf("SendStop: %v", err)
	}
	w.Poll()

	p, _, s := ctrl.counts()
	if s != 1 {
		t.Errorf("stops = %d, want 1", s)
	}
	if p != 0 {
		t.Errorf("pauses = %d, want 0 when stop is present", p)
	}
}

func TestWatcherDeliversSignal(t *testing.T) {
	dir := t.TempDir()
	ctrl := &recordingController{}

	w, err := NewWatcher(dir, ctrl)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()

	if err := SendStop(dir); err != nil {
		t.Fatalf("SendStop: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, _, s := ctrl.counts(); s > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	// Filesystem notification is best effort; Poll is the fallback path.
	w.Poll()
	if _, _, s := ctrl.counts(); s == 0 {
		t.Error("stop signal never delivered")
	}
}

func TestClearSignals(t *testing.T) {
	dir := t.TempDir()
	for _, send := range []func(string) error{SendStop, SendPause, SendResume} {
		if err := send(dir); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	ClearSignals(dir)
	for _, name := range []string{SignalStop, SignalPause, SignalResume} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("signal %s survived ClearSignals", name)
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	w, err := NewWatcher(t.TempDir(), &recordingController{})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}
