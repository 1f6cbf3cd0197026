package platform

import "sync"

// ChannelNotifier is a sync.Notifier fed by explicit Notify calls. The
// hosting app wires platform callbacks (connectivity change, app state
// change) into it; tests drive it directly.
type ChannelNotifier struct {
	online   chan struct{}
	appState chan bool

	closeOnce sync.Once
}

// NewChannelNotifier creates a notifier with small buffers so bursty
// platform callbacks never block the caller.
func NewChannelNotifier() *ChannelNotifier {
	return &ChannelNotifier{
		online:   make(chan struct{}, 4),
		appState: make(chan bool, 4),
	}
}

func (n *ChannelNotifier) Online() <-chan struct{} { return n.online }
func (n *ChannelNotifier) AppState() <-chan bool   { return n.appState }

// NotifyOnline signals regained connectivity. Dropped when the buffer is
// full; coalescing repeat signals is fine, the reaction is the same.
func (n *ChannelNotifier) NotifyOnline() {
	select {
	case n.online <- struct{}{}:
	default:
	}
}

// NotifyAppState signals a foreground (true) or background (false)
// transition.
func (n *ChannelNotifier) NotifyAppState(active bool) {
	select {
	case n.appState <- active:
	default:
	}
}

// Close releases the notifier. Safe to call more than once.
func (n *ChannelNotifier) Close() error {
	n.closeOnce.Do(func() {
		close(n.online)
		close(n.appState)
	})
	return nil
}
