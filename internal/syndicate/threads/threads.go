package threads

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
	providerName = "threads"

	pollInterval = 5 * time.Second
	maxPolls     = 30
)

// Client publishes to Threads via its Graph API container flow. Unlike
// Instagram, text-only posts are supported.
type Client struct {
	cred   *syndicate.Credential
	userID string

	graph *meta.Client
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a Threads poster from its settings.
func New(settings syndicate.Settings) *Client {
	cred := &syndicate.Credential{
		AccessToken:  settings.Get("access_token"),
		RefreshToken: settings.Get("refresh_token"),
	}
	return &Client{
		cred:   cred,
		userID: settings.Get("user_id"),
		graph:  meta.NewClient(providerName, meta.ThreadsBaseURL, cred),
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post creates a thread with optional media. Media must be a public URL.
func (c *Client) Post(ctx context.Context, req syndicate.Request) (string, error) {
	if err := c.precheck(); err != nil {
		return "", err
	}

	var media syndicate.MediaRef
	if len(req.Media) > 0 {
		media = req.Media[0]
		if !media.IsURL() {
			return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q must be a public URL", media)}
		}
	}

	text := req.Text
	if req.Link != "" {
		text = strings.TrimSpace(text + "\n\n" + req.Link)
	}
	if text == "" && media == "" {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "either text or media is required"}
	}

	pipeline := syndicate.Pipeline{
		Provider: providerName,
		Register: func(ctx context.Context) (string, error) {
			return c.createContainer(ctx, media, text)
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

func (c *Client) createContainer(ctx context.Context, media syndicate.MediaRef, text string) (string, error) {
	params := url.Values{}
	if text != "" {
		params.Set("text", text)
	}
	switch {
	case media == "":
		params.Set("media_type", "TEXT")
	case media.Kind() == syndicate.MediaVideo:
		params.Set("media_type", "VIDEO")
		params.Set("video_url", media.String())
	default:
		params.Set("media_type", "IMAGE")
		params.Set("image_url", media.String())
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.graph.Post(ctx, "/"+c.userID+"/threads", params, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("create container: empty creation id")
	}
	return out.ID, nil
}

func (c *Client) pollContainer(ctx context.Context, containerID string) (syndicate.PollState, error) {
	params := url.Values{}
	params.Set("fields", "status,error_message")

	var out struct {
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	if err := c.graph.Get(ctx, "/"+containerID, params, &out); err != nil {
		return syndicate.PollState{}, err
	}

	switch out.Status {
	case "FINISHED", "PUBLISHED":
		return syndicate.PollState{Phase: syndicate.PollReady}, nil
	case "ERROR", "EXPIRED":
		return syndicate.PollState{Phase: syndicate.PollFailed, Detail: out.ErrorMessage}, nil
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
	if err := c.graph.Post(ctx, "/"+c.userID+"/threads_publish", params, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// refresh trades the stored refresh token for a new long-lived token.
func (c *Client) refresh(ctx context.Context, cred *syndicate.Credential) error {
	params := url.Values{}
	params.Set("grant_type", "th_refresh_token")
	params.Set("access_token", cred.RefreshToken)

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := c.graph.Get(ctx, "/refresh_access_token", params, &out); err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	if out.AccessToken == "" {
		return fmt.Errorf("refresh token: empty access token in response")
	}
	cred.Update(out.AccessToken, out.AccessToken, out.ExpiresIn)
	return nil
}
