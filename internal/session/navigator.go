package session

import (
	"context"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Navigator performs the forced redirect to the login location after the
// session expired.
type Navigator interface {
	Navigate(ctx context.Context, location string)
}

// RecordingNavigator remembers the pending redirect until the UI transport
// hands it to the browser.
type RecordingNavigator struct {
	mu      sync.Mutex
	pending string
}

// Navigate records location as the pending redirect.
func (n *RecordingNavigator) Navigate(_ context.Context, location string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pending = location
}

// Pending returns the pending redirect without consuming it.
func (n *RecordingNavigator) Pending() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.pending
}

// Take returns and clears the pending redirect.
func (n *RecordingNavigator) Take() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	loc := n.pending
	n.pending = ""
	return loc
}

// Clear drops any pending redirect, e.g. after a successful login.
func (n *RecordingNavigator) Clear() {
	n.Take()
}

// LogNavigator tells a CLI user to log in again.
type LogNavigator struct {
	Out    io.Writer
	Logger *zap.Logger
}

// Navigate prints the login hint.
func (n *LogNavigator) Navigate(_ context.Context, location string) {
	if n.Logger != nil {
		n.Logger.Warn("session expired", zap.String("location", location))
	}
	if n.Out != nil {
		fmt.Fprintln(n.Out, "Session expired. Run `console login` to sign in again.")
	}
}
