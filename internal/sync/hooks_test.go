package sync

import (
	"context"
	"testing"
	"time"
)

type fakeNotifier struct {
	online   chan struct{}
	appState chan bool
	closed   int
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{
		online:   make(chan struct{}, 1),
		appState: make(chan bool, 1),
	}
}

func (n *fakeNotifier) Online() <-chan struct{} { return n.online }
func (n *fakeNotifier) AppState() <-chan bool   { return n.appState }
func (n *fakeNotifier) Close() error {
	n.closed++
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHooks_OnlineRestartsWhenWanted(t *testing.T) {
	transport := &fakeTransport{}
	handler := &recordingHandler{}
	url := "https://localhost:5984/spending"
	m := newTestManager(transport, handler, &url)
	notifier := newFakeNotifier()

	m.Restart(context.Background())
	m.InstallHooks(notifier)
	defer m.RemoveHooks()

	notifier.online <- struct{}{}
	waitFor(t, "restart on connectivity", func() bool { return transport.startCount() == 2 })
}

func TestHooks_AppStateDrivesStopAndRestart(t *testing.T) {
	transport := &fakeTransport{}
	handler := &recordingHandler{}
	url := "https://localhost:5984/spending"
	m := newTestManager(transport, handler, &url)
	notifier := newFakeNotifier()

	m.Restart(context.Background())
	m.InstallHooks(notifier)
	defer m.RemoveHooks()

	notifier.appState <- false
	waitFor(t, "stop on background", func() bool { return !m.Running() && m.Wanted() })

	notifier.appState <- true
	waitFor(t, "restart on foreground", func() bool { return m.Running() })
}

func TestHooks_IgnoredWhenSyncNotWanted(t *testing.T) {
	transport := &fakeTransport{}
	handler := &recordingHandler{}
	url := ""
	m := newTestManager(transport, handler, &url)
	notifier := newFakeNotifier()

	m.Restart(context.Background())
	m.InstallHooks(notifier)
	defer m.RemoveHooks()

	notifier.online <- struct{}{}

	// Give the hook goroutine a moment; nothing should start.
	time.Sleep(50 * time.Millisecond)
	if transport.startCount() != 0 {
		t.Errorf("start count = %d, want 0 when sync is not wanted", transport.startCount())
	}
}

func TestHooks_InstallIsIdempotentAndRemovable(t *testing.T) {
	transport := &fakeTransport{}
	handler := &recordingHandler{}
	url := "https://localhost:5984/spending"
	m := newTestManager(transport, handler, &url)

	first := newFakeNotifier()
	second := newFakeNotifier()

	m.InstallHooks(first)
	m.InstallHooks(second) // ignored: already installed

	m.Restart(context.Background())
	first.online <- struct{}{}
	waitFor(t, "restart via first notifier", func() bool { return transport.startCount() >= 2 })

	m.RemoveHooks()
	if first.closed != 1 {
		t.Errorf("first notifier closed %d times, want 1", first.closed)
	}
	if second.closed != 0 {
		t.Errorf("second notifier closed %d times, want 0 (never installed)", second.closed)
	}

	// After removal a fresh install works again.
	m.InstallHooks(second)
	m.RemoveHooks()
	if second.closed != 1 {
		t.Errorf("second notifier closed %d times after reinstall, want 1", second.closed)
	}
}

func TestHooks_NilNotifierIsAccepted(t *testing.T) {
	transport := &fakeTransport{}
	handler := &recordingHandler{}
	url := "https://localhost:5984/spending"
	m := newTestManager(transport, handler, &url)

	m.InstallHooks(nil)
	m.RemoveHooks()
}
