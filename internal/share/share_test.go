package share

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAnnouncer struct {
	name string
	err  error
	got  []Announcement
}

func (f *fakeAnnouncer) Name() string { return f.name }

func (f *fakeAnnouncer) Announce(ctx context.Context, a Announcement) error {
	f.got = append(f.got, a)
	return f.err
}

func TestNormalizeTargets(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []string
		wantErr bool
	}{
		{"empty", nil, []string{}, false},
		{"sorted and deduped", []string{"Twitter", "mastodon", "twitter"}, []string{"mastodon", "twitter"}, false},
		{"comma separated", []string{"bluesky, twitter"}, []string{"bluesky", "twitter"}, false},
		{"all", []string{"twitter", "all"}, []string{"bluesky", "mastodon", "twitter"}, false},
		{"unsupported", []string{"myspace"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeTargets(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnnouncementText(t *testing.T) {
	a := Announcement{Title: "Hello", Body: "A longer body of text", Link: "https://example.com/"}

	assert.Equal(t, "Hello\n\nA longer body of text\n\nhttps://example.com/", a.Text(0))

	short := a.Text(30)
	assert.LessOrEqual(t, len([]rune(short)), 30)
	assert.True(t, strings.HasSuffix(short, "\n\nhttps://example.com/"))
	assert.True(t, strings.HasPrefix(short, "Hello"))

	noLink := Announcement{Title: "Only a title"}
	assert.Equal(t, "Only a title", noLink.Text(280))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", Truncate("héllo", 5))
	assert.Equal(t, "hél…", Truncate("héllo", 4))
	assert.Equal(t, "…", Truncate("héllo", 1))
	assert.Equal(t, "", Truncate("héllo", 0))
}

func TestBuildCollectsErrors(t *testing.T) {
	ok := &fakeAnnouncer{name: "mastodon"}
	constructors := map[string]Constructor{
		"mastodon": func(context.Context) (Announcer, error) { return ok, nil },
		"twitter": func(context.Context) (Announcer, error) {
			return nil, MissingEnvError{Provider: "twitter", Variables: []string{"NEWPOST_TWITTER_CONSUMER_KEY"}}
		},
	}

	announcers, err := Build(context.Background(), []string{"bluesky", "mastodon", "twitter"}, constructors)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `target "bluesky" is not implemented`)

	var missing MissingEnvError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "twitter", missing.Provider)
	assert.Equal(t, []Announcer{ok}, announcers)
}

func TestDispatch(t *testing.T) {
	good := &fakeAnnouncer{name: "bluesky"}
	bad := &fakeAnnouncer{name: "twitter", err: errors.New("rate limited")}
	a := Announcement{Title: "Hi", Image: &Media{Name: "a.png", Data: []byte("x")}, Alt: "alt"}

	var out bytes.Buffer
	err := Dispatch(context.Background(), []Announcer{good, bad}, a, &out, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "twitter: rate limited")
	assert.Len(t, good.got, 1)
	assert.Len(t, bad.got, 1)
	assert.Contains(t, out.String(), "announced on bluesky")
}

func TestDispatchDryRun(t *testing.T) {
	f := &fakeAnnouncer{name: "mastodon"}
	var out bytes.Buffer
	err := Dispatch(context.Background(), []Announcer{f}, Announcement{Title: "Hi", Image: &Media{Name: "a.png"}}, &out, true)
	require.NoError(t, err)
	assert.Empty(t, f.got)
	assert.Contains(t, out.String(), "[dry-run] would announce on mastodon")
	assert.Contains(t, out.String(), "[dry-run] image: a.png")
}

func TestMissingEnvError(t *testing.T) {
	assert.Equal(t, "bluesky credentials not configured", MissingEnvError{Provider: "bluesky"}.Error())
	assert.Equal(t,
		"bluesky credentials not configured (missing A, B)",
		MissingEnvError{Provider: "bluesky", Variables: []string{"A", "B"}}.Error())
}

func TestPreviews(t *testing.T) {
	previews := Previews([]string{"bluesky", "twitter"})
	require.Len(t, previews, 2)
	assert.Equal(t, "bluesky", previews[0].Name())
	assert.Error(t, previews[1].Announce(context.Background(), Announcement{}))

	var out bytes.Buffer
	require.NoError(t, Dispatch(context.Background(), previews, Announcement{Title: "Hi"}, &out, true))
	assert.Contains(t, out.String(), "[dry-run] would announce on twitter")
}
