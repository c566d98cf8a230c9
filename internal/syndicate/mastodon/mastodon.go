package mastodon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/blacktop/syndicate/internal/syndicate"
	mastodonapi "github.com/mattn/go-mastodon"
)

const (
	providerName   = "mastodon"
	requestTimeout = 30 * time.Second
)

// Client posts statuses to a Mastodon instance. Access tokens are
// long-lived, so there is no refresh path. Media must be local files; the
// instance does not fetch remote URLs on upload.
type Client struct {
	server      string
	accessToken string

	client *mastodonapi.Client
}

// New builds a Mastodon poster from its settings.
func New(settings syndicate.Settings) *Client {
	return &Client{
		server:      settings.Get("server"),
		accessToken: settings.Get("access_token"),
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post publishes a new status to the configured instance.
func (c *Client) Post(ctx context.Context, req syndicate.Request) (string, error) {
	if err := c.precheck(); err != nil {
		return "", err
	}

	status := req.Text
	if req.Link != "" {
		status = strings.TrimSpace(status + "\n\n" + req.Link)
	}
	if status == "" && len(req.Media) == 0 {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "either text or media is required"}
	}

	api := c.connect()

	var mediaIDs []mastodonapi.ID
	for _, media := range req.Media {
		if media.IsURL() {
			return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q must be a local file", media)}
		}
		attachment, err := c.uploadMedia(ctx, api, media.String())
		if err != nil {
			return "", err
		}
		mediaIDs = append(mediaIDs, attachment.ID)
	}

	toot, err := api.PostStatus(ctx, &mastodonapi.Toot{
		Status:   status,
		MediaIDs: mediaIDs,
	})
	if err != nil {
		return "", fmt.Errorf("post status: %w", err)
	}
	return string(toot.ID), nil
}

func (c *Client) precheck() error {
	var missing []string
	if c.server == "" {
		missing = append(missing, "server")
	}
	if c.accessToken == "" {
		missing = append(missing, "access_token")
	}
	if len(missing) > 0 {
		return syndicate.CredentialError{Provider: providerName, Missing: missing}
	}
	return nil
}

func (c *Client) connect() *mastodonapi.Client {
	if c.client == nil {
		c.client = mastodonapi.NewClient(&mastodonapi.Config{
			Server:      c.server,
			AccessToken: c.accessToken,
		})
		c.client.Timeout = requestTimeout
	}
	return c.client
}

func (c *Client) uploadMedia(ctx context.Context, api *mastodonapi.Client, path string) (*mastodonapi.Attachment, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q not found", path)}
		}
		return nil, fmt.Errorf("open media: %w", err)
	}
	defer file.Close()

	attachment, err := api.UploadMediaFromMedia(ctx, &mastodonapi.Media{File: file})
	if err != nil {
		return nil, fmt.Errorf("upload media: %w", err)
	}
	return attachment, nil
}
