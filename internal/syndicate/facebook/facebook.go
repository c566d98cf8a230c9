package facebook

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/blacktop/syndicate/internal/syndicate/meta"
)

const providerName = "facebook"

// Client publishes to a Facebook page feed. Media may be a public URL or
// a local file; local files are uploaded as multipart form data.
type Client struct {
	cred   *syndicate.Credential
	pageID string

	clientID     string
	clientSecret string

	graph *meta.Client
}

// New builds a Facebook page poster from its settings.
func New(settings syndicate.Settings) *Client {
	cred := &syndicate.Credential{
		AccessToken:  settings.Get("access_token"),
		RefreshToken: settings.Get("refresh_token"),
	}
	return &Client{
		cred:         cred,
		pageID:       settings.Get("page_id"),
		clientID:     settings.Get("client_id"),
		clientSecret: settings.Get("client_secret"),
		graph:        meta.NewClient(providerName, meta.GraphBaseURL, cred),
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post publishes a feed message, photo, or video to the configured page.
func (c *Client) Post(ctx context.Context, req syndicate.Request) (string, error) {
	if err := c.precheck(); err != nil {
		return "", err
	}
	if req.Text == "" && req.Link == "" && len(req.Media) == 0 {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "either text, link, or media is required"}
	}

	var postID string
	err := syndicate.Guarded(ctx, c.cred, c.refresh, func(ctx context.Context) error {
		var err error
		if len(req.Media) > 0 {
			postID, err = c.postMedia(ctx, req.Media[0], req)
		} else {
			postID, err = c.postFeed(ctx, req)
		}
		return err
	})
	return postID, err
}

func (c *Client) precheck() error {
	var missing []string
	if !c.cred.HasAccess() {
		missing = append(missing, "access_token")
	}
	if c.pageID == "" {
		missing = append(missing, "page_id")
	}
	if len(missing) > 0 {
		return syndicate.CredentialError{Provider: providerName, Missing: missing}
	}
	return nil
}

func (c *Client) postFeed(ctx context.Context, req syndicate.Request) (string, error) {
	params := url.Values{}
	if req.Text != "" {
		params.Set("message", req.Text)
	}
	if req.Link != "" {
		params.Set("link", req.Link)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.graph.Post(ctx, "/"+c.pageID+"/feed", params, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) postMedia(ctx context.Context, media syndicate.MediaRef, req syndicate.Request) (string, error) {
	edge := "/" + c.pageID + "/photos"
	captionField := "caption"
	urlField := "url"
	if media.Kind() == syndicate.MediaVideo {
		edge = "/" + c.pageID + "/videos"
		captionField = "description"
		urlField = "file_url"
	}

	caption := req.Text
	if req.Link != "" {
		if caption != "" {
			caption += "\n\n"
		}
		caption += req.Link
	}

	params := url.Values{}
	if caption != "" {
		params.Set(captionField, caption)
	}

	var out struct {
		ID     string `json:"id"`
		PostID string `json:"post_id"`
	}

	if media.IsURL() {
		params.Set(urlField, media.String())
		if err := c.graph.Post(ctx, edge, params, &out); err != nil {
			return "", err
		}
	} else {
		file, err := os.Open(media.String())
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q not found", media)}
			}
			return "", fmt.Errorf("open media: %w", err)
		}
		defer file.Close()

		if err := c.graph.PostFile(ctx, edge, params, "source", filepath.Base(media.String()), file, &out); err != nil {
			return "", err
		}
	}

	if out.PostID != "" {
		return out.PostID, nil
	}
	return out.ID, nil
}

// refresh exchanges the stored long-lived token for a fresh one.
func (c *Client) refresh(ctx context.Context, cred *syndicate.Credential) error {
	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", c.clientID)
	params.Set("client_secret", c.clientSecret)
	params.Set("fb_exchange_token", cred.RefreshToken)

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.graph.Get(ctx, "/oauth/access_token", params, &out); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	if out.AccessToken == "" {
		return fmt.Errorf("refresh token: empty access token in response")
	}
	cred.Update(out.AccessToken, "", out.ExpiresIn)
	return nil
}

// Stats reports basic page metrics.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	if err := c.precheck(); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("fields", "name,fan_count,followers_count")

	var out struct {
		Name           string `json:"name"`
		FanCount       int64  `json:"fan_count"`
		FollowersCount int64  `json:"followers_count"`
	}
	err := syndicate.Guarded(ctx, c.cred, c.refresh, func(ctx context.Context) error {
		return c.graph.Get(ctx, "/"+c.pageID, params, &out)
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"name":      out.Name,
		"fans":      out.FanCount,
		"followers": out.FollowersCount,
	}, nil
}
