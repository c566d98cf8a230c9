package instagram

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/blacktop/syndicate/internal/syndicate/meta"
)

const (
	providerName = "instagram"

	pollInterval = 5 * time.Second
	maxPolls     = 30
)

// Client publishes to an Instagram professional account through the Graph
// API container flow: create container, wait for processing, publish.
type Client struct {
	cred   *syndicate.Credential
	userID string

	clientID     string
	clientSecret string

	graph *meta.Client
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an Instagram poster from its settings. Missing credentials
// are reported at Post time, not here.
func New(settings syndicate.Settings) *Client {
	cred := &syndicate.Credential{
		AccessToken:  settings.Get("access_token"),
		RefreshToken: settings.Get("refresh_token"),
	}
	return &Client{
		cred:         cred,
		userID:       settings.Get("user_id"),
		clientID:     settings.Get("client_id"),
		clientSecret: settings.Get("client_secret"),
		graph:        meta.NewClient(providerName, meta.GraphBaseURL, cred),
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post publishes one image or video. Instagram only accepts publicly
// reachable media URLs, and a post without media is not supported.
func (c *Client) Post(ctx context.Context, req syndicate.Request) (string, error) {
	if err := c.precheck(); err != nil {
		return "", err
	}
	if len(req.Media) == 0 {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "instagram requires media"}
	}
	media := req.Media[0]
	if !media.IsURL() {
		return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q must be a public URL", media)}
	}

	caption := req.Text
	if req.Link != "" {
		caption = strings.TrimSpace(caption + "\n\n" + req.Link)
	}

	pipeline := syndicate.Pipeline{
		Provider: providerName,
		Register: func(ctx context.Context) (string, error) {
			return c.createContainer(ctx, media, caption)
		},
		Poll:         c.pollContainer,
		Publish:      c.publishContainer,
		PollInterval: pollInterval,
		MaxPolls:     maxPolls,
		Sleep:        c.sleep,
	}

	var postID string
	err := syndicate.Guarded(ctx, c.cred, c.refresh, func(ctx context.Context) error {
		var err error
		postID, err = pipeline.Run(ctx)
		return err
	})
	return postID, err
}

func (c *Client) precheck() error {
	var missing []string
	if !c.cred.HasAccess() {
		missing = append(missing, "access_token")
	}
	if c.userID == "" {
		missing = append(missing, "user_id")
	}
	if len(missing) > 0 {
		return syndicate.CredentialError{Provider: providerName, Missing: missing}
	}
	return nil
}

func (c *Client) createContainer(ctx context.Context, media syndicate.MediaRef, caption string) (string, error) {
	params := url.Values{}
	if caption != "" {
		params.Set("caption", caption)
	}
	if media.Kind() == syndicate.MediaVideo {
		params.Set("media_type", "REELS")
		params.Set("video_url", media.String())
		// Reels need a cover; without one the first frame is a stable default.
		params.Set("thumb_offset", "0")
	} else {
		params.Set("image_url", media.String())
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.graph.Post(ctx, "/"+c.userID+"/media", params, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create container: empty creation id")
	}
	return out.ID, nil
}

func (c *Client) pollContainer(ctx context.Context, containerID string) (syndicate.PollState, error) {
	params := url.Values{}
	params.Set("fields", "status_code,status")

	var out struct {
		StatusCode string `json:"status_code"`
		Status     string `json:"status"`
	}
	if err := c.graph.Get(ctx, "/"+containerID, params, &out); err != nil {
		return syndicate.PollState{}, err
	}

	switch out.StatusCode {
	case "FINISHED", "PUBLISHED":
		return syndicate.PollState{Phase: syndicate.PollReady}, nil
	case "ERROR", "EXPIRED":
		return syndicate.PollState{Phase: syndicate.PollFailed, Detail: out.Status}, nil
	default:
		return syndicate.PollState{Phase: syndicate.PollProcessing, Detail: out.Status}, nil
	}
}

func (c *Client) publishContainer(ctx context.Context, containerID string) (string, error) {
	params := url.Values{}
	params.Set("creation_id", containerID)

	var out struct {
		ID string `json:"id"`
	}
	if err := c.graph.Post(ctx, "/"+c.userID+"/media_publish", params, &out); err != nil {
		return "", err
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

// Stats reports basic account metrics.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	if err := c.precheck(); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("fields", "username,followers_count,media_count")

	var out struct {
		Username       string `json:"username"`
		FollowersCount int64  `json:"followers_count"`
		MediaCount     int64  `json:"media_count"`
	}
	err := syndicate.Guarded(ctx, c.cred, c.refresh, func(ctx context.Context) error {
		return c.graph.Get(ctx, "/"+c.userID, params, &out)
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"username":  out.Username,
		"followers": out.FollowersCount,
		"posts":     out.MediaCount,
	}, nil
}
