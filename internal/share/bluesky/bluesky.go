package bluesky

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/blacktop/newpost/internal/share"
	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
)

const (
	envHandle      = "NEWPOST_BLUESKY_HANDLE"
	envAppPassword = "NEWPOST_BLUESKY_APP_PASSWORD"
	envPDSURL      = "NEWPOST_BLUESKY_PDS_URL"

	defaultPDSURL  = "https://bsky.social"
	providerName   = "bluesky"
	requestTimeout = 30 * time.Second
	postLimit      = 300
)

// Client implements share.Announcer for Bluesky.
type Client struct {
	client *xrpc.Client
}

// New logs in to the configured PDS and returns an announcer.
func New(ctx context.Context) (share.Announcer, error) {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: requestTimeout}
	userAgent := "newpost/1"
	xrpcClient := &xrpc.Client{
		Client:    httpClient,
		Host:      cfg.PDSURL,
		UserAgent: &userAgent,
	}

	session, err := atproto.ServerCreateSession(ctx, xrpcClient, &atproto.ServerCreateSession_Input{
		Identifier: cfg.Handle,
		Password:   cfg.AppPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	xrpcClient.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}

	return &Client{client: xrpcClient}, nil
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Announce creates a Bluesky post with the image embedded when present.
func (c *Client) Announce(ctx context.Context, a share.Announcement) error {
	post := &bsky.FeedPost{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Text:      a.Text(postLimit),
	}

	if a.Image != nil {
		blob, err := c.uploadImage(ctx, a.Image)
		if err != nil {
			return err
		}
		post.Embed = &bsky.FeedPost_Embed{
			EmbedImages: &bsky.EmbedImages{
				Images: []*bsky.EmbedImages_Image{
					{
						Alt:   a.Alt,
						Image: blob,
					},
				},
			},
		}
	}

	_, err := atproto.RepoCreateRecord(ctx, c.client, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       c.client.Auth.Did,
		Record: &util.LexiconTypeDecoder{
			Val: post,
		},
	})
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}

	return nil
}

func (c *Client) uploadImage(ctx context.Context, media *share.Media) (*util.LexBlob, error) {
	if len(media.Data) == 0 {
		return nil, share.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q is empty", media.Name)}
	}

	resp, err := atproto.RepoUploadBlob(ctx, c.client, bytes.NewReader(media.Data))
	if err != nil {
		return nil, fmt.Errorf("upload blob: %w", err)
	}

	if resp.Blob == nil {
		return nil, fmt.Errorf("upload blob: empty response")
	}

	return resp.Blob, nil
}

// Config holds the Bluesky account used for announcements.
type Config struct {
	Handle      string
	AppPassword string
	PDSURL      string
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		Handle:      strings.TrimSpace(os.Getenv(envHandle)),
		AppPassword: strings.TrimSpace(os.Getenv(envAppPassword)),
		PDSURL:      strings.TrimSpace(os.Getenv(envPDSURL)),
	}

	if cfg.PDSURL == "" {
		cfg.PDSURL = defaultPDSURL
	}

	var missing []string
	if cfg.Handle == "" {
		missing = append(missing, envHandle)
	}
	if cfg.AppPassword == "" {
		missing = append(missing, envAppPassword)
	}

	if len(missing) > 0 {
		return Config{}, share.MissingEnvError{Provider: providerName, Variables: missing}
	}

	return cfg, nil
}
