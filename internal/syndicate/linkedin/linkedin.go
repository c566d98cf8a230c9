package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/blacktop/syndicate/internal/syndicate"
)

const (
	providerName = "linkedin"

	defaultBaseURL  = "https://api.linkedin.com/v2"
	defaultTokenURL = "https://www.linkedin.com/oauth/v2/accessToken"

	requestTimeout = 60 * time.Second
	pollInterval   = 3 * time.Second
	maxPolls       = 20
)

// Client publishes UGC posts as the configured member or organization.
// Media must be a local file; it is registered as an asset, uploaded, and
// polled until LinkedIn finishes processing it.
type Client struct {
	cred         *syndicate.Credential
	author       string
	clientID     string
	clientSecret string

	baseURL  string
	tokenURL string
	http     *http.Client
	sleep    func(ctx context.Context, d time.Duration) error
}

// New builds a LinkedIn poster from its settings. The identity anchor is
// either person_id or organization_id, carried as an URN.
func New(settings syndicate.Settings) *Client {
	author := ""
	if id := settings.Get("person_id"); id != "" {
		author = "urn:li:person:" + id
	} else if id := settings.Get("organization_id"); id != "" {
		author = "urn:li:organization:" + id
	}
	return &Client{
		cred: &syndicate.Credential{
			AccessToken:  settings.Get("access_token"),
			RefreshToken: settings.Get("refresh_token"),
		},
		author:       author,
		clientID:     settings.Get("client_id"),
		clientSecret: settings.Get("client_secret"),
		baseURL:      defaultBaseURL,
		tokenURL:     defaultTokenURL,
		http:         &http.Client{Timeout: requestTimeout},
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post publishes text, an article link, or a media post.
func (c *Client) Post(ctx context.Context, req syndicate.Request) (string, error) {
	if err := c.precheck(); err != nil {
		return "", err
	}
	if req.Text == "" && req.Link == "" && len(req.Media) == 0 {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "either text, link, or media is required"}
	}
	if len(req.Media) > 0 && req.Media[0].IsURL() {
		return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q must be a local file", req.Media[0])}
	}

	var postID string
	err := syndicate.Guarded(ctx, c.cred, c.refresh, func(ctx context.Context) error {
		var err error
		if len(req.Media) > 0 {
			postID, err = c.postWithMedia(ctx, req)
		} else {
			postID, err = c.createPost(ctx, req, "", "")
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
	if c.author == "" {
		missing = append(missing, "person_id or organization_id")
	}
	if len(missing) > 0 {
		return syndicate.CredentialError{Provider: providerName, Missing: missing}
	}
	return nil
}

func (c *Client) postWithMedia(ctx context.Context, req syndicate.Request) (string, error) {
	media := req.Media[0]
	data, err := os.ReadFile(media.String())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q not found", media)}
		}
		return "", fmt.Errorf("read media: %w", err)
	}

	recipe := "urn:li:digitalmediaRecipe:feedshare-image"
	category := "IMAGE"
	if media.Kind() == syndicate.MediaVideo {
		recipe = "urn:li:digitalmediaRecipe:feedshare-video"
		category = "VIDEO"
	}

	var uploadURL string
	pipeline := syndicate.Pipeline{
		Provider: providerName,
		Register: func(ctx context.Context) (string, error) {
			asset, upload, err := c.registerUpload(ctx, recipe)
			uploadURL = upload
			return asset, err
		},
		Upload: func(ctx context.Context, asset string) error {
			return c.uploadBinary(ctx, uploadURL, data)
		},
		Poll: c.pollAsset,
		Publish: func(ctx context.Context, asset string) (string, error) {
			return c.createPost(ctx, req, asset, category)
		},
		PollInterval: pollInterval,
		MaxPolls:     maxPolls,
		Sleep:        c.sleep,
	}
	return pipeline.Run(ctx)
}

func (c *Client) registerUpload(ctx context.Context, recipe string) (string, string, error) {
	body := map[string]any{
		"registerUploadRequest": map[string]any{
			"recipes": []string{recipe},
			"owner":   c.author,
			"serviceRelationships": []map[string]any{{
				"relationshipType": "OWNER",
				"identifier":       "urn:li:userGeneratedContent",
			}},
		},
	}

	var out struct {
		Value struct {
			Asset           string `json:"asset"`
			UploadMechanism map[string]struct {
				UploadURL string `json:"uploadUrl"`
			} `json:"uploadMechanism"`
		} `json:"value"`
	}
	if err := c.call(ctx, http.MethodPost, "/assets?action=registerUpload", body, &out); err != nil {
		return "", "", err
	}
	if out.Value.Asset == "" {
		return "", "", fmt.Errorf("register upload: empty asset urn")
	}
	var uploadURL string
	for _, mechanism := range out.Value.UploadMechanism {
		if mechanism.UploadURL != "" {
			uploadURL = mechanism.UploadURL
			break
		}
	}
	if uploadURL == "" {
		return "", "", fmt.Errorf("register upload: no upload url in response")
	}
	return out.Value.Asset, uploadURL, nil
}

func (c *Client) uploadBinary(ctx context.Context, uploadURL string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cred.AccessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload media: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// pollAsset reads the asset's processing status. The asset id doubles as
// the container id, so the urn is escaped into the request path.
func (c *Client) pollAsset(ctx context.Context, asset string) (syndicate.PollState, error) {
	id := asset
	if i := strings.LastIndex(asset, ":"); i >= 0 {
		id = asset[i+1:]
	}

	var out struct {
		Recipes []struct {
			Status string `json:"status"`
		} `json:"recipes"`
	}
	if err := c.call(ctx, http.MethodGet, "/assets/"+id, nil, &out); err != nil {
		return syndicate.PollState{}, err
	}
	if len(out.Recipes) == 0 {
		return syndicate.PollState{Phase: syndicate.PollProcessing}, nil
	}

	switch out.Recipes[0].Status {
	case "AVAILABLE":
		return syndicate.PollState{Phase: syndicate.PollReady}, nil
	case "CLIENT_ERROR", "SERVER_ERROR":
		return syndicate.PollState{Phase: syndicate.PollFailed, Detail: out.Recipes[0].Status}, nil
	default:
		return syndicate.PollState{Phase: syndicate.PollProcessing, Detail: out.Recipes[0].Status}, nil
	}
}

func (c *Client) createPost(ctx context.Context, req syndicate.Request, asset, category string) (string, error) {
	shareCategory := "NONE"
	media := []map[string]any{}
	switch {
	case asset != "":
		shareCategory = category
		media = append(media, map[string]any{
			"status": "READY",
			"media":  asset,
		})
	case req.Link != "":
		shareCategory = "ARTICLE"
		media = append(media, map[string]any{
			"status":      "READY",
			"originalUrl": req.Link,
		})
	}

	content := map[string]any{
		"shareCommentary":    map[string]any{"text": req.Text},
		"shareMediaCategory": shareCategory,
	}
	if len(media) > 0 {
		content["media"] = media
	}

	body := map[string]any{
		"author":         c.author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": content,
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/ugcPosts", body, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cred.AccessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("linkedin request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		var envelope struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &envelope)
		return syndicate.AuthError{Provider: providerName, StatusCode: resp.StatusCode, Reason: envelope.Message}
	}
	if resp.StatusCode >= 400 {
		var envelope struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &envelope)
		return fmt.Errorf("linkedin error (status %d): %s", resp.StatusCode, envelope.Message)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// refresh exchanges the refresh token for a new access token.
func (c *Client) refresh(ctx context.Context, cred *syndicate.Credential) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if out.AccessToken == "" {
		return fmt.Errorf("refresh token: empty access token in response")
	}
	cred.Update(out.AccessToken, out.RefreshToken, out.ExpiresIn)
	return nil
}
