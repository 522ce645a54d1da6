package mastodon

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blacktop/newpost/internal/share"
	mastodonapi "github.com/mattn/go-mastodon"
)

const (
	envServer       = "NEWPOST_MASTODON_SERVER"
	envAccessToken  = "NEWPOST_MASTODON_ACCESS_TOKEN"
	envClientID     = "NEWPOST_MASTODON_CLIENT_ID"
	envClientSecret = "NEWPOST_MASTODON_CLIENT_SECRET"

	providerName   = "mastodon"
	requestTimeout = 30 * time.Second
	statusLimit    = 500
)

// Config contains the settings needed to reach a Mastodon server.
type Config struct {
	Server       string
	AccessToken  string
	ClientID     string
	ClientSecret string
}

// Client wraps the Mastodon API client.
type Client struct {
	client *mastodonapi.Client
}

// New constructs a Mastodon announcer based on environment configuration.
func New(ctx context.Context) (share.Announcer, error) {
	cfg, err := loadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	mastodonClient := mastodonapi.NewClient(&mastodonapi.Config{
		Server:       cfg.Server,
		AccessToken:  cfg.AccessToken,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	})
	mastodonClient.Timeout = requestTimeout

	return &Client{client: mastodonClient}, nil
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Announce publishes a toot linking to the new post.
func (c *Client) Announce(ctx context.Context, a share.Announcement) error {
	var mediaIDs []mastodonapi.ID
	if a.Image != nil {
		attachment, err := c.uploadMedia(ctx, a.Image, a.Alt)
		if err != nil {
			return err
		}
		mediaIDs = append(mediaIDs, attachment.ID)
	}

	_, err := c.client.PostStatus(ctx, &mastodonapi.Toot{
		Status:   a.Text(statusLimit),
		MediaIDs: mediaIDs,
	})
	if err != nil {
		return fmt.Errorf("post status: %w", err)
	}

	return nil
}

func (c *Client) uploadMedia(ctx context.Context, media *share.Media, alt string) (*mastodonapi.Attachment, error) {
	if len(media.Data) == 0 {
		return nil, share.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q is empty", media.Name)}
	}

	attachment, err := c.client.UploadMediaFromMedia(ctx, &mastodonapi.Media{
		File:        bytes.NewReader(media.Data),
		Description: alt,
	})
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}

	return attachment, nil
}

func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		Server:       strings.TrimSpace(os.Getenv(envServer)),
		AccessToken:  strings.TrimSpace(os.Getenv(envAccessToken)),
		ClientID:     strings.TrimSpace(os.Getenv(envClientID)),
		ClientSecret: strings.TrimSpace(os.Getenv(envClientSecret)),
	}

	var missing []string
	if cfg.Server == "" {
		missing = append(missing, envServer)
	}
	if cfg.AccessToken == "" {
		missing = append(missing, envAccessToken)
	}

	if len(missing) > 0 {
		return Config{}, share.MissingEnvError{Provider: providerName, Variables: missing}
	}

	return cfg, nil
}
