// Package notice is the user-facing notification boundary. The browser
// app surfaces these as transient toasts; the daemon logs them. All
// network failures end up here instead of propagating.
package notice

import (
	"sync"

	"deskchat/pkg/logger"
)

// Notice is a transient user-visible message.
type Notice struct {
	Title     string
	Body      string
	ActionURL string
}

// Notifier receives user-facing notices. Implementations must be safe for
// concurrent use; controllers call from transport callbacks.
type Notifier interface {
	// Error surfaces a failure notice (toast.error equivalent).
	Error(msg string)
	// Notify surfaces an informational notice with optional action.
	Notify(n Notice)
}

// LogNotifier writes notices to the global logger. It is the default
// Notifier for headless use.
type LogNotifier struct{}

func (LogNotifier) Error(msg string) {
	logger.Warn("user_notice_error", "msg", msg)
}

func (LogNotifier) Notify(n Notice) {
	logger.Info("user_notice", "title", n.Title, "body", n.Body, "action_url", n.ActionURL)
}

// Capture records notices for inspection. Used by tests.
type Capture struct {
	mu      sync.Mutex
	errors  []string
	notices []Notice
}

func (c *Capture) Error(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, msg)
}

func (c *Capture) Notify(n Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, n)
}

// Errors returns a copy of the captured error messages.
func (c *Capture) Errors() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.errors...)
}

// Notices returns a copy of the captured notices.
func (c *Capture) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice(nil), c.notices...)
}
