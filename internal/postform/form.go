// Package postform drives the new-post form: it guards on the session,
// collects the title, content and image, and submits them once.
package postform

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/blacktop/newpost/internal/api"
	"github.com/blacktop/newpost/internal/logutil"
	"github.com/blacktop/newpost/internal/session"
)

// Navigation destinations.
const (
	LoginPath = "/login"
	HomePath  = "/"
)

// Alert texts shown to the user.
const (
	MsgMissingInput = "User ID or image is missing"
	MsgCreateFailed = "Post creation failed"
	MsgUnexpected   = "Something went wrong"
)

var (
	// ErrMissingInput is returned when the session user has no ID or no image is selected.
	ErrMissingInput = errors.New("user id or image is missing")
	// ErrSubmitInFlight is returned when Submit is called while another submission is outstanding.
	ErrSubmitInFlight = errors.New("a submission is already in flight")
)

// Navigator moves the user between destinations.
type Navigator interface {
	Push(dest string)
	Refresh()
}

// Alerter shows a blocking message to the user.
type Alerter interface {
	Alert(msg string)
}

// Fields exposes the current text field values. It is read once per submit.
type Fields interface {
	Title() string
	Content() string
}

// Submitter sends the create-post request.
type Submitter interface {
	CreatePost(ctx context.Context, p api.Payload) (*api.Response, error)
}

// Values is a fixed Fields snapshot.
type Values struct {
	TitleText   string
	ContentText string
}

func (v Values) Title() string   { return v.TitleText }
func (v Values) Content() string { return v.ContentText }

// Created describes a post the backend accepted.
type Created struct {
	Payload  api.Payload
	Response *api.Response
}

// Options wires a Form to its collaborators. Store and Submitter are required.
type Options struct {
	Store     *session.Store
	Navigator Navigator
	Alerter   Alerter
	Fields    Fields
	Submitter Submitter
	// OnCreated runs after navigation for every accepted post.
	OnCreated func(ctx context.Context, c Created)
}

// Form holds the state of one new-post view.
type Form struct {
	store     *session.Store
	nav       Navigator
	alerter   Alerter
	fields    Fields
	submitter Submitter
	onCreated func(context.Context, Created)

	mu      sync.Mutex
	image   *Image
	loading bool
}

// New returns a Form ready to be mounted.
func New(opts Options) *Form {
	f := &Form{
		store:     opts.Store,
		nav:       opts.Navigator,
		alerter:   opts.Alerter,
		fields:    opts.Fields,
		submitter: opts.Submitter,
		onCreated: opts.OnCreated,
	}
	if f.store == nil {
		f.store = session.NewStore()
	}
	if f.nav == nil {
		f.nav = nopNavigator{}
	}
	if f.alerter == nil {
		f.alerter = nopAlerter{}
	}
	if f.fields == nil {
		f.fields = Values{}
	}
	return f
}

// SetFields swaps the source read at submit time.
func (f *Form) SetFields(fields Fields) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields = fields
}

// Mount adopts serverUser into the session store. Without a user it
// redirects to the login page and reports false.
func (f *Form) Mount(serverUser *session.User) bool {
	if serverUser == nil {
		logutil.Debugf("no session user, redirecting to %s", LoginPath)
		f.nav.Push(LoginPath)
		return false
	}
	f.store.Set(*serverUser)
	logutil.Debugf("session adopted: user_id=%s", serverUser.ID)
	return true
}

// Ready reports whether a session user is available; until then only a
// loading placeholder should be shown.
func (f *Form) Ready() bool {
	_, ok := f.store.Current()
	return ok
}

// User returns the current session user.
func (f *Form) User() (session.User, bool) {
	return f.store.Current()
}

// SelectImage keeps the first of files as the pending image, replacing any
// earlier choice. An empty selection leaves the pending image unchanged.
func (f *Form) SelectImage(files ...Image) {
	if len(files) == 0 {
		return
	}
	img := files[0]

	f.mu.Lock()
	defer f.mu.Unlock()
	f.image = &img
}

// PendingImage returns the image that the next submit will upload.
func (f *Form) PendingImage() (Image, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.image == nil {
		return Image{}, false
	}
	return *f.image, true
}

// Reset discards the pending image for a fresh post.
func (f *Form) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.image = nil
}

// Loading reports whether a submission is outstanding.
func (f *Form) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// acquire flips the form into the submitting state. The returned release
// must be called exactly once.
func (f *Form) acquire() (release func(), ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loading {
		return nil, false
	}
	f.loading = true

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.loading = false
			f.mu.Unlock()
		})
	}, true
}

// Submit sends the current fields and pending image to the backend. Every
// failure is alerted to the user and also returned.
func (f *Form) Submit(ctx context.Context) error {
	user, _ := f.store.Current()
	img, hasImage := f.PendingImage()
	if user.ID == "" || !hasImage {
		f.alerter.Alert(MsgMissingInput)
		return ErrMissingInput
	}

	release, ok := f.acquire()
	if !ok {
		return ErrSubmitInFlight
	}
	defer release()

	f.mu.Lock()
	fields := f.fields
	f.mu.Unlock()

	payload := api.Payload{
		Title:   fields.Title(),
		Content: fields.Content(),
		UserID:  user.ID,
		Image:   img.file(),
	}

	resp, err := f.submitter.CreatePost(ctx, payload)
	if err != nil {
		var statusErr *api.StatusError
		if errors.As(err, &statusErr) {
			msg := statusErr.Message
			if msg == "" {
				msg = MsgCreateFailed
			}
			logutil.Debugf("create post rejected: status=%d message=%q", statusErr.Code, statusErr.Message)
			f.alerter.Alert(msg)
			return err
		}
		logutil.Errorf("create post: %v", err)
		f.alerter.Alert(MsgUnexpected)
		return fmt.Errorf("create post: %w", err)
	}

	f.nav.Push(HomePath)
	f.nav.Refresh()
	release()

	if f.onCreated != nil {
		f.onCreated(ctx, Created{Payload: payload, Response: resp})
	}
	return nil
}

type nopNavigator struct{}

func (nopNavigator) Push(string) {}
func (nopNavigator) Refresh()    {}

type nopAlerter struct{}

func (nopAlerter) Alert(string) {}
