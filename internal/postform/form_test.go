package postform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/blacktop/newpost/internal/api"
	"github.com/blacktop/newpost/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeNavigator struct {
	pushes    []string
	refreshes int
}

func (n *fakeNavigator) Push(dest string) { n.pushes = append(n.pushes, dest) }
func (n *fakeNavigator) Refresh()         { n.refreshes++ }

type fakeAlerter struct {
	messages []string
}

func (a *fakeAlerter) Alert(msg string) { a.messages = append(a.messages, msg) }

type fakeSubmitter struct {
	calls    []api.Payload
	resp     *api.Response
	err      error
	loading  []bool
	form     *Form
	onSubmit func()
}

func (s *fakeSubmitter) CreatePost(ctx context.Context, p api.Payload) (*api.Response, error) {
	s.calls = append(s.calls, p)
	if s.form != nil {
		s.loading = append(s.loading, s.form.Loading())
	}
	if s.onSubmit != nil {
		s.onSubmit()
	}
	return s.resp, s.err
}

// mutableFields mimics input elements whose value changes until submit.
type mutableFields struct {
	title, content string
}

func (m *mutableFields) Title() string   { return m.title }
func (m *mutableFields) Content() string { return m.content }

type harness struct {
	form   *Form
	store  *session.Store
	nav    *fakeNavigator
	alerts *fakeAlerter
	sub    *fakeSubmitter
	fields *mutableFields
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  session.NewStore(),
		nav:    &fakeNavigator{},
		alerts: &fakeAlerter{},
		sub:    &fakeSubmitter{resp: &api.Response{StatusCode: 200}},
		fields: &mutableFields{},
	}
	h.form = New(Options{
		Store:     h.store,
		Navigator: h.nav,
		Alerter:   h.alerts,
		Fields:    h.fields,
		Submitter: h.sub,
	})
	h.sub.form = h.form
	return h
}

var testImage = Image{Name: "a.png", ContentType: "image/png", Data: []byte("png")}

func TestMountAdoptsServerUser(t *testing.T) {
	h := newHarness(t)
	assert.False(t, h.form.Ready())

	u := &session.User{ID: "u1", Name: "Alice"}
	require.True(t, h.form.Mount(u))

	got, ok := h.store.Current()
	require.True(t, ok)
	assert.Equal(t, *u, got)
	assert.True(t, h.form.Ready())
	assert.Empty(t, h.nav.pushes)
}

func TestMountWithoutUserRedirects(t *testing.T) {
	h := newHarness(t)

	assert.False(t, h.form.Mount(nil))
	assert.Equal(t, []string{LoginPath}, h.nav.pushes)
	_, ok := h.store.Current()
	assert.False(t, ok)
	assert.False(t, h.form.Ready())
}

func TestSubmitWithoutImage(t *testing.T) {
	h := newHarness(t)
	h.form.Mount(&session.User{ID: "u1"})

	err := h.form.Submit(context.Background())
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.Empty(t, h.sub.calls)
	assert.Equal(t, []string{MsgMissingInput}, h.alerts.messages)
	assert.False(t, h.form.Loading())
}

func TestSubmitWithoutUserID(t *testing.T) {
	h := newHarness(t)
	h.form.Mount(&session.User{Name: "anonymous"})
	h.form.SelectImage(testImage)

	err := h.form.Submit(context.Background())
	assert.ErrorIs(t, err, ErrMissingInput)
	assert.Empty(t, h.sub.calls)
	assert.Equal(t, []string{MsgMissingInput}, h.alerts.messages)
	assert.False(t, h.form.Loading())
}

func TestSubmitBeforeMount(t *testing.T) {
	h := newHarness(t)
	h.form.SelectImage(testImage)

	assert.ErrorIs(t, h.form.Submit(context.Background()), ErrMissingInput)
	assert.Empty(t, h.sub.calls)
}

func TestSubmitSuccess(t *testing.T) {
	h := newHarness(t)
	h.form.Mount(&session.User{ID: "u1"})
	h.form.SelectImage(testImage)

	h.fields.title = "draft"
	h.fields.content = "draft body"
	// values are read at submit time, not when the image was picked
	h.fields.title = "Final title"
	h.fields.content = "Final body"

	var created []Created
	h.form.onCreated = func(ctx context.Context, c Created) {
		assert.False(t, h.form.Loading())
		created = append(created, c)
	}

	require.NoError(t, h.form.Submit(context.Background()))

	require.Len(t, h.sub.calls, 1)
	assert.Equal(t, api.Payload{
		Title:   "Final title",
		Content: "Final body",
		UserID:  "u1",
		Image:   api.File{Name: "a.png", ContentType: "image/png", Data: []byte("png")},
	}, h.sub.calls[0])
	assert.Equal(t, []bool{true}, h.sub.loading)

	assert.Equal(t, []string{HomePath}, h.nav.pushes)
	assert.Equal(t, 1, h.nav.refreshes)
	assert.Empty(t, h.alerts.messages)
	assert.False(t, h.form.Loading())
	require.Len(t, created, 1)
	assert.Equal(t, "Final title", created[0].Payload.Title)
}

func TestSubmitStatusFailure(t *testing.T) {
	tests := []struct {
		name string
		err  *api.StatusError
		want string
	}{
		{"backend message", &api.StatusError{Code: 400, Message: "X"}, "X"},
		{"generic", &api.StatusError{Code: 500}, MsgCreateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.form.Mount(&session.User{ID: "u1"})
			h.form.SelectImage(testImage)
			h.sub.err = tt.err

			err := h.form.Submit(context.Background())
			var statusErr *api.StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, []string{tt.want}, h.alerts.messages)
			assert.Empty(t, h.nav.pushes)
			assert.False(t, h.form.Loading())
		})
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	h := newHarness(t)
	h.form.Mount(&session.User{ID: "u1"})
	h.form.SelectImage(testImage)
	transportErr := errors.New("connection refused")
	h.sub.err = transportErr

	err := h.form.Submit(context.Background())
	assert.ErrorIs(t, err, transportErr)
	assert.Equal(t, []string{MsgUnexpected}, h.alerts.messages)
	assert.Empty(t, h.nav.pushes)
	assert.False(t, h.form.Loading())
}

func TestSubmitUnreadableResponse(t *testing.T) {
	h := newHarness(t)
	h.form.Mount(&session.User{ID: "u1"})
	h.form.SelectImage(testImage)
	h.sub.err = &api.DecodeError{Code: 200, Err: errors.New("invalid character '<'")}

	err := h.form.Submit(context.Background())
	var decodeErr *api.DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, []string{MsgUnexpected}, h.alerts.messages)
	assert.Empty(t, h.nav.pushes)
	assert.Zero(t, h.nav.refreshes)
	assert.False(t, h.form.Loading())
}

func TestSubmitSendsEmptyTextFields(t *testing.T) {
	h := newHarness(t)
	h.form.Mount(&session.User{ID: "u1"})
	h.form.SelectImage(testImage)

	require.NoError(t, h.form.Submit(context.Background()))
	require.Len(t, h.sub.calls, 1)
	assert.Empty(t, h.sub.calls[0].Title)
	assert.Empty(t, h.sub.calls[0].Content)
	assert.Empty(t, h.alerts.messages)
}

func TestSubmitReleasesLoadingOnPanic(t *testing.T) {
	h := newHarness(t)
	h.form.Mount(&session.User{ID: "u1"})
	h.form.SelectImage(testImage)
	h.sub.onSubmit = func() { panic("boom") }

	assert.Panics(t, func() { _ = h.form.Submit(context.Background()) })
	assert.False(t, h.form.Loading())
}

func TestSubmitRejectsOverlap(t *testing.T) {
	h := newHarness(t)
	h.form.Mount(&session.User{ID: "u1"})
	h.form.SelectImage(testImage)

	var nested error
	h.sub.onSubmit = func() {
		nested = h.form.Submit(context.Background())
	}

	require.NoError(t, h.form.Submit(context.Background()))
	assert.ErrorIs(t, nested, ErrSubmitInFlight)
	assert.Len(t, h.sub.calls, 1)
	assert.Empty(t, h.alerts.messages)
}

func TestSubmitConcurrentCallsIssueOneRequest(t *testing.T) {
	store := session.NewStore()
	gate := make(chan struct{})
	started := make(chan struct{})
	sub := &blockingSubmitter{gate: gate, started: started}
	form := New(Options{Store: store, Submitter: sub})
	form.Mount(&session.User{ID: "u1"})
	form.SelectImage(testImage)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- form.Submit(context.Background())
	}()
	<-started
	assert.True(t, form.Loading())
	assert.ErrorIs(t, form.Submit(context.Background()), ErrSubmitInFlight)

	close(gate)
	wg.Wait()
	assert.NoError(t, <-errs)
	assert.Equal(t, 1, sub.calls)
	assert.False(t, form.Loading())
}

type blockingSubmitter struct {
	mu      sync.Mutex
	calls   int
	gate    chan struct{}
	started chan struct{}
}

func (b *blockingSubmitter) CreatePost(ctx context.Context, p api.Payload) (*api.Response, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	close(b.started)
	<-b.gate
	return &api.Response{StatusCode: 201}, nil
}

func TestSelectImageReplacesPrevious(t *testing.T) {
	h := newHarness(t)
	h.form.Mount(&session.User{ID: "u1"})

	_, ok := h.form.PendingImage()
	assert.False(t, ok)

	first := Image{Name: "first.png", Data: []byte("1")}
	second := Image{Name: "second.jpg", Data: []byte("2")}
	h.form.SelectImage(first)
	h.form.SelectImage(second, first)
	h.form.SelectImage()

	got, ok := h.form.PendingImage()
	require.True(t, ok)
	assert.Equal(t, second, got)

	require.NoError(t, h.form.Submit(context.Background()))
	require.Len(t, h.sub.calls, 1)
	assert.Equal(t, "second.jpg", h.sub.calls[0].Image.Name)
	assert.Equal(t, []byte("2"), h.sub.calls[0].Image.Data)

	h.form.Reset()
	_, ok = h.form.PendingImage()
	assert.False(t, ok)
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()

	t.Run("by extension", func(t *testing.T) {
		path := filepath.Join(dir, "photo.png")
		require.NoError(t, os.WriteFile(path, []byte("not really a png"), 0o600))

		img, err := LoadImage(path)
		require.NoError(t, err)
		assert.Equal(t, "photo.png", img.Name)
		assert.Equal(t, "image/png", img.ContentType)
		assert.Equal(t, []byte("not really a png"), img.Data)
	})

	t.Run("sniffed", func(t *testing.T) {
		path := filepath.Join(dir, "upload")
		gif := []byte("GIF89a\x01\x00\x01\x00")
		require.NoError(t, os.WriteFile(path, gif, 0o600))

		img, err := LoadImage(path)
		require.NoError(t, err)
		assert.Equal(t, "image/gif", img.ContentType)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadImage(filepath.Join(dir, "nope.png"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("empty path", func(t *testing.T) {
		_, err := LoadImage("  ")
		assert.Error(t, err)
	})
}
