package sync

import "context"

// Notifier delivers platform lifecycle signals: connectivity regained and
// app foreground/background transitions. Implementations that cannot
// observe a signal simply never send on that channel.
type Notifier interface {
	// Online fires when network connectivity returns.
	Online() <-chan struct{}
	// AppState fires with true on foreground, false on background.
	AppState() <-chan bool
	// Close releases any platform resources. Safe to call more than once.
	Close() error
}

// InstallHooks subscribes the manager to lifecycle signals. Installing is
// idempotent; signals only act while sync is wanted. A nil notifier is
// accepted since web-like platforms may have no hooks at all.
func (m *Manager) InstallHooks(notifier Notifier) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()

	if m.hooksSetup {
		return
	}
	m.hooksSetup = true
	m.notifier = notifier
	if notifier == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.hooksCancel = cancel

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-notifier.Online():
				if !ok {
					return
				}
				if m.Wanted() {
					m.Restart(ctx)
				}
			case active, ok := <-notifier.AppState():
				if !ok {
					return
				}
				if !m.Wanted() {
					continue
				}
				if active {
					m.Restart(ctx)
				} else {
					m.Stop("background")
				}
			}
		}
	}()
}

// RemoveHooks undoes InstallHooks so teardown leaves nothing registered.
// Failures closing the notifier are swallowed; hooks are best-effort.
func (m *Manager) RemoveHooks() {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()

	if !m.hooksSetup {
		return
	}
	if m.hooksCancel != nil {
		m.hooksCancel()
		m.hooksCancel = nil
	}
	if m.notifier != nil {
		_ = m.notifier.Close()
		m.notifier = nil
	}
	m.hooksSetup = false
}
