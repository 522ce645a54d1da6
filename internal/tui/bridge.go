package tui

import (
	"sync"

	"github.com/blacktop/newpost/internal/postform"
)

// Bridge collects alerts and navigation raised by the form while a submit
// runs off the UI goroutine, and forwards navigation to Next.
type Bridge struct {
	Next postform.Navigator

	mu     sync.Mutex
	alerts []string
	dest   string
}

// Alert queues msg for the next render.
func (b *Bridge) Alert(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.alerts = append(b.alerts, msg)
}

// Push records dest and forwards it.
func (b *Bridge) Push(dest string) {
	b.mu.Lock()
	b.dest = dest
	b.mu.Unlock()
	if b.Next != nil {
		b.Next.Push(dest)
	}
}

// Refresh forwards to Next.
func (b *Bridge) Refresh() {
	if b.Next != nil {
		b.Next.Refresh()
	}
}

// Drain returns and clears the queued alerts and the last destination.
func (b *Bridge) Drain() (alerts []string, dest string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	alerts, dest = b.alerts, b.dest
	b.alerts, b.dest = nil, ""
	return alerts, dest
}
