package tiktok

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
	providerName = "tiktok"

	defaultBaseURL = "https://open.tiktokapis.com/v2"

	requestTimeout = 60 * time.Second
	pollInterval   = 5 * time.Second
	maxPolls       = 30

	// Frame used as the video cover when the caller supplies none.
	defaultCoverTimestampMS = 1000
)

// Client publishes videos through the TikTok Content Posting API. TikTok
// is video-only: a request without video media is rejected up front. A URL
// locator becomes a PULL_FROM_URL post; a local path is uploaded directly.
type Client struct {
	cred         *syndicate.Credential
	clientKey    string
	clientSecret string

	baseURL string
	http    *http.Client
	sleep   func(ctx context.Context, d time.Duration) error
}

// New builds a TikTok poster from its settings.
func New(settings syndicate.Settings) *Client {
	return &Client{
		cred: &syndicate.Credential{
			AccessToken:  settings.Get("access_token"),
			RefreshToken: settings.Get("refresh_token"),
		},
		clientKey:    settings.Get("client_key"),
		clientSecret: settings.Get("client_secret"),
		baseURL:      defaultBaseURL,
		http:         &http.Client{Timeout: requestTimeout},
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post publishes one video and waits for TikTok's server-side processing
// to reach a terminal state.
func (c *Client) Post(ctx context.Context, req syndicate.Request) (string, error) {
	if !c.cred.HasAccess() {
		return "", syndicate.CredentialError{Provider: providerName, Missing: []string{"access_token"}}
	}
	if len(req.Media) == 0 {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "tiktok requires a video"}
	}
	media := req.Media[0]
	if media.Kind() != syndicate.MediaVideo {
		return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q is not a video", media)}
	}

	var videoData []byte
	if !media.IsURL() {
		data, err := os.ReadFile(media.String())
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("video %q not found", media)}
			}
			return "", fmt.Errorf("read video: %w", err)
		}
		videoData = data
	}

	title := req.Text
	if req.Link != "" {
		title = strings.TrimSpace(title + " " + req.Link)
	}

	var uploadURL string
	pipeline := syndicate.Pipeline{
		Provider: providerName,
		Register: func(ctx context.Context) (string, error) {
			publishID, upload, err := c.initPublish(ctx, media, title, len(videoData))
			uploadURL = upload
			return publishID, err
		},
		Poll: c.pollStatus,
		Publish: func(ctx context.Context, publishID string) (string, error) {
			// Direct posts go live once processing completes; the publish
			// id is the final handle.
			return publishID, nil
		},
		PollInterval: pollInterval,
		MaxPolls:     maxPolls,
		Sleep:        c.sleep,
	}
	if videoData != nil {
		pipeline.Upload = func(ctx context.Context, publishID string) error {
			return c.uploadVideo(ctx, uploadURL, videoData)
		}
	}

	var postID string
	err := syndicate.Guarded(ctx, c.cred, c.refresh, func(ctx context.Context) error {
		var err error
		postID, err = pipeline.Run(ctx)
		return err
	})
	return postID, err
}

type initRequest struct {
	PostInfo   map[string]any `json:"post_info"`
	SourceInfo map[string]any `json:"source_info"`
}

func (c *Client) initPublish(ctx context.Context, media syndicate.MediaRef, title string, videoSize int) (string, string, error) {
	body := initRequest{
		PostInfo: map[string]any{
			"title":                    title,
			"privacy_level":            "PUBLIC_TO_EVERYONE",
			"video_cover_timestamp_ms": defaultCoverTimestampMS,
		},
	}
	if media.IsURL() {
		body.SourceInfo = map[string]any{
			"source":    "PULL_FROM_URL",
			"video_url": media.String(),
		}
	} else {
		body.SourceInfo = map[string]any{
			"source":            "FILE_UPLOAD",
			"video_size":        videoSize,
			"chunk_size":        videoSize,
			"total_chunk_count": 1,
		}
	}

	var out struct {
		Data struct {
			PublishID string `json:"publish_id"`
			UploadURL string `json:"upload_url"`
		} `json:"data"`
	}
	if err := c.call(ctx, "/post/publish/video/init/", body, &out); err != nil {
		return "", "", err
	}
	if out.Data.PublishID == "" {
		return "", "", fmt.Errorf("init publish: empty publish id")
	}
	return out.Data.PublishID, out.Data.UploadURL, nil
}

func (c *Client) uploadVideo(ctx context.Context, uploadURL string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "video/mp4")
	req.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", len(data)-1, len(data)))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload video: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("upload video: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (c *Client) pollStatus(ctx context.Context, publishID string) (syndicate.PollState, error) {
	body := map[string]any{"publish_id": publishID}

	var out struct {
		Data struct {
			Status     string `json:"status"`
			FailReason string `json:"fail_reason"`
		} `json:"data"`
	}
	if err := c.call(ctx, "/post/publish/status/fetch/", body, &out); err != nil {
		return syndicate.PollState{}, err
	}

	switch out.Data.Status {
	case "PUBLISH_COMPLETE":
		return syndicate.PollState{Phase: syndicate.PollReady}, nil
	case "FAILED":
		return syndicate.PollState{Phase: syndicate.PollFailed, Detail: out.Data.FailReason}, nil
	default:
		return syndicate.PollState{Phase: syndicate.PollProcessing, Detail: out.Data.Status}, nil
	}
}

type apiEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) call(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cred.AccessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("tiktok request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope apiEnvelope
	_ = json.Unmarshal(raw, &envelope)

	if resp.StatusCode == http.StatusUnauthorized || envelope.Error.Code == "access_token_invalid" {
		return syndicate.AuthError{Provider: providerName, StatusCode: resp.StatusCode, Reason: envelope.Error.Message}
	}
	if resp.StatusCode >= 400 || (envelope.Error.Code != "" && envelope.Error.Code != "ok") {
		return fmt.Errorf("tiktok error (status %d, code %s): %s", resp.StatusCode, envelope.Error.Code, envelope.Error.Message)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// refresh exchanges the refresh token for a new access token.
func (c *Client) refresh(ctx context.Context, cred *syndicate.Credential) error {
	form := url.Values{}
	form.Set("client_key", c.clientKey)
	form.Set("client_secret", c.clientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token/", strings.NewReader(form.Encode()))
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
