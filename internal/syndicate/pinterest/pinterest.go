package pinterest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/blacktop/syndicate/internal/syndicate"
)

const (
	providerName = "pinterest"

	defaultBaseURL = "https://api.pinterest.com/v5"

	requestTimeout = 60 * time.Second
	pollInterval   = 3 * time.Second
	maxPolls       = 20

	// Cover substituted for video pins when the caller supplies none;
	// Pinterest refuses video pins without one.
	defaultCoverURL = "https://s.pinimg.com/images/default_cover.png"
)

// Client creates pins on a configured board. Image pins take a public
// image URL; video pins register a media upload, push the file, and poll
// until Pinterest finishes transcoding.
type Client struct {
	cred         *syndicate.Credential
	boardID      string
	clientID     string
	clientSecret string
	coverURL     string

	baseURL string
	http    *http.Client
	sleep   func(ctx context.Context, d time.Duration) error
}

// New builds a Pinterest poster from its settings.
func New(settings syndicate.Settings) *Client {
	cover := settings.Get("cover_url")
	if cover == "" {
		cover = defaultCoverURL
	}
	return &Client{
		cred: &syndicate.Credential{
			AccessToken:  settings.Get("access_token"),
			RefreshToken: settings.Get("refresh_token"),
		},
		boardID:      settings.Get("board_id"),
		clientID:     settings.Get("client_id"),
		clientSecret: settings.Get("client_secret"),
		coverURL:     cover,
		baseURL:      defaultBaseURL,
		http:         &http.Client{Timeout: requestTimeout},
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post creates one pin on the configured board.
func (c *Client) Post(ctx context.Context, req syndicate.Request) (string, error) {
	if err := c.precheck(); err != nil {
		return "", err
	}
	if len(req.Media) == 0 {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "pinterest requires media"}
	}
	media := req.Media[0]

	var postID string
	err := syndicate.Guarded(ctx, c.cred, c.refresh, func(ctx context.Context) error {
		var err error
		if media.Kind() == syndicate.MediaVideo {
			postID, err = c.postVideoPin(ctx, media, req)
		} else {
			postID, err = c.postImagePin(ctx, media, req)
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
	if c.boardID == "" {
		missing = append(missing, "board_id")
	}
	if len(missing) > 0 {
		return syndicate.CredentialError{Provider: providerName, Missing: missing}
	}
	return nil
}

func (c *Client) postImagePin(ctx context.Context, media syndicate.MediaRef, req syndicate.Request) (string, error) {
	if !media.IsURL() {
		return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q must be a public URL", media)}
	}
	return c.createPin(ctx, req, map[string]any{
		"source_type": "image_url",
		"url":         media.String(),
	})
}

func (c *Client) postVideoPin(ctx context.Context, media syndicate.MediaRef, req syndicate.Request) (string, error) {
	if media.IsURL() {
		return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("video %q must be a local file", media)}
	}

	data, err := os.ReadFile(media.String())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("video %q not found", media)}
		}
		return "", fmt.Errorf("read video: %w", err)
	}

	var uploadURL string
	var uploadParams map[string]string
	pipeline := syndicate.Pipeline{
		Provider: providerName,
		Register: func(ctx context.Context) (string, error) {
			mediaID, upload, params, err := c.registerUpload(ctx)
			uploadURL, uploadParams = upload, params
			return mediaID, err
		},
		Upload: func(ctx context.Context, mediaID string) error {
			return c.uploadVideo(ctx, uploadURL, uploadParams, media.String(), data)
		},
		Poll: c.pollMedia,
		Publish: func(ctx context.Context, mediaID string) (string, error) {
			return c.createPin(ctx, req, map[string]any{
				"source_type":     "video_id",
				"media_id":        mediaID,
				"cover_image_url": c.coverURL,
			})
		},
		PollInterval: pollInterval,
		MaxPolls:     maxPolls,
		Sleep:        c.sleep,
	}
	return pipeline.Run(ctx)
}

func (c *Client) registerUpload(ctx context.Context) (string, string, map[string]string, error) {
	var out struct {
		MediaID          string            `json:"media_id"`
		UploadURL        string            `json:"upload_url"`
		UploadParameters map[string]string `json:"upload_parameters"`
	}
	if err := c.call(ctx, http.MethodPost, "/media", map[string]any{"media_type": "video"}, &out); err != nil {
		return "", "", nil, err
	}
	if out.MediaID == "" {
		return "", "", nil, fmt.Errorf("register upload: empty media id")
	}
	return out.MediaID, out.UploadURL, out.UploadParameters, nil
}

func (c *Client) uploadVideo(ctx context.Context, uploadURL string, params map[string]string, filename string, data []byte) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range params {
		if err := writer.WriteField(key, value); err != nil {
			return fmt.Errorf("write upload parameter: %w", err)
		}
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("copy video: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, &buf)
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

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

func (c *Client) pollMedia(ctx context.Context, mediaID string) (syndicate.PollState, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.call(ctx, http.MethodGet, "/media/"+mediaID, nil, &out); err != nil {
		return syndicate.PollState{}, err
	}

	switch out.Status {
	case "succeeded":
		return syndicate.PollState{Phase: syndicate.PollReady}, nil
	case "failed":
		return syndicate.PollState{Phase: syndicate.PollFailed, Detail: "pinterest reported transcoding failure"}, nil
	default:
		return syndicate.PollState{Phase: syndicate.PollProcessing, Detail: out.Status}, nil
	}
}

func (c *Client) createPin(ctx context.Context, req syndicate.Request, source map[string]any) (string, error) {
	body := map[string]any{
		"board_id":     c.boardID,
		"media_source": source,
	}
	if req.Text != "" {
		body["description"] = req.Text
	}
	if req.Link != "" {
		body["link"] = req.Link
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, http.MethodPost, "/pins", body, &out); err != nil {
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
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pinterest request: %w", err)
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
			Code    int    `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &envelope)
		return fmt.Errorf("pinterest error (status %d, code %d): %s", resp.StatusCode, envelope.Code, envelope.Message)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// refresh exchanges the refresh token for a new access token using basic
// client authentication.
func (c *Client) refresh(ctx context.Context, cred *syndicate.Credential) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

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
