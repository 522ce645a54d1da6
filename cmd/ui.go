package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/blacktop/newpost/internal/api"
	"github.com/blacktop/newpost/internal/logutil"
	"github.com/blacktop/newpost/internal/tui"
)

// alertedError marks a failure the user has already been shown.
type alertedError struct{ error }

func (e alertedError) Unwrap() error { return e.error }

// Alerted reports whether err was already surfaced to the user as an alert.
func Alerted(err error) bool {
	var a alertedError
	return errors.As(err, &a)
}

type alerter struct {
	out io.Writer
}

func (a alerter) Alert(msg string) {
	fmt.Fprintln(a.out, tui.AlertStyle.Render(msg))
}

// navigator prints destinations and re-fetches them on Refresh.
type navigator struct {
	ctx      context.Context
	client   *api.Client
	out      io.Writer
	simulate bool

	mu   sync.Mutex
	dest string
}

func (n *navigator) Push(dest string) {
	n.mu.Lock()
	n.dest = dest
	out := n.out
	n.mu.Unlock()
	fmt.Fprintf(out, "-> %s\n", n.client.URL(dest))
}

func (n *navigator) Refresh() {
	n.mu.Lock()
	dest := n.dest
	n.mu.Unlock()
	if n.simulate || dest == "" {
		return
	}
	if err := n.client.Refresh(n.ctx, dest); err != nil {
		logutil.Warnf("refresh %s: %v", dest, err)
	}
}

func (n *navigator) setOutput(w io.Writer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.out = w
}

func (n *navigator) destination() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dest
}

// dryRunSubmitter prints the payload instead of sending it.
type dryRunSubmitter struct {
	out io.Writer
}

func (d dryRunSubmitter) CreatePost(ctx context.Context, p api.Payload) (*api.Response, error) {
	fmt.Fprintf(d.out, "[dry-run] would POST %s\n", api.CreatePostPath)
	fmt.Fprintf(d.out, "[dry-run]   %s: %q\n", api.FieldTitle, p.Title)
	fmt.Fprintf(d.out, "[dry-run]   %s: %d bytes\n", api.FieldContent, len(p.Content))
	fmt.Fprintf(d.out, "[dry-run]   %s: %q\n", api.FieldUserID, p.UserID)
	fmt.Fprintf(d.out, "[dry-run]   %s: %s (%s, %d bytes)\n", api.FieldImage, p.Image.Name, p.Image.ContentType, len(p.Image.Data))
	return &api.Response{}, nil
}
