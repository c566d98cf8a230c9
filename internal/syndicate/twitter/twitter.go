package twitter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/michimani/gotwi"
	"github.com/michimani/gotwi/media/upload"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
	"github.com/michimani/gotwi/resources"
	"github.com/michimani/gotwi/tweet/managetweet"
	managetweettypes "github.com/michimani/gotwi/tweet/managetweet/types"
)

const providerName = "twitter"

var httpTimeout = 30 * time.Second

// Client publishes tweets with OAuth 1.0a user-context credentials.
// OAuth 1.0a tokens never expire, so there is no refresh path. Media must
// be local image files; X fetches nothing by URL.
type Client struct {
	apiKey       string
	apiSecret    string
	accessToken  string
	accessSecret string

	api *gotwi.Client
}

// New builds a Twitter/X poster from its settings.
func New(settings syndicate.Settings) *Client {
	return &Client{
		apiKey:       settings.Get("api_key"),
		apiSecret:    settings.Get("api_secret"),
		accessToken:  settings.Get("access_token"),
		accessSecret: settings.Get("access_secret"),
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post publishes the text (and up to four images) as a tweet.
func (c *Client) Post(ctx context.Context, req syndicate.Request) (string, error) {
	if err := c.precheck(); err != nil {
		return "", err
	}
	text := req.Text
	if req.Link != "" {
		text = strings.TrimSpace(text + " " + req.Link)
	}
	if text == "" && len(req.Media) == 0 {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "either text or media is required"}
	}
	if len(req.Media) > 4 {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "at most four images per tweet"}
	}

	api, err := c.connect()
	if err != nil {
		return "", err
	}

	var mediaIDs []string
	for _, media := range req.Media {
		if media.IsURL() {
			return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q must be a local file", media)}
		}
		logutil.Debugf("uploading media: path=%s", media)
		mediaID, err := c.uploadMedia(ctx, media.String())
		if err != nil {
			return "", err
		}
		mediaIDs = append(mediaIDs, mediaID)
		logutil.Debugf("media uploaded: media_id=%s", mediaID)
	}

	input := &managetweettypes.CreateInput{
		Text: gotwi.String(text),
	}
	if len(mediaIDs) > 0 {
		input.Media = &managetweettypes.CreateInputMedia{MediaIDs: mediaIDs}
	}

	logutil.Debugf("posting tweet: media_count=%d", len(mediaIDs))
	res, err := managetweet.Create(ctx, api, input)
	if err != nil {
		return "", fmt.Errorf("post tweet: %w", unwrapGotwiError(err))
	}
	return gotwi.StringValue(res.Data.ID), nil
}

func (c *Client) precheck() error {
	var missing []string
	if c.apiKey == "" {
		missing = append(missing, "api_key")
	}
	if c.apiSecret == "" {
		missing = append(missing, "api_secret")
	}
	if c.accessToken == "" {
		missing = append(missing, "access_token")
	}
	if c.accessSecret == "" {
		missing = append(missing, "access_secret")
	}
	if len(missing) > 0 {
		return syndicate.CredentialError{Provider: providerName, Missing: missing}
	}
	return nil
}

func (c *Client) connect() (*gotwi.Client, error) {
	if c.api != nil {
		return c.api, nil
	}

	client, err := gotwi.NewClient(&gotwi.NewClientInput{
		HTTPClient:           &http.Client{Timeout: httpTimeout},
		AuthenticationMethod: gotwi.AuthenMethodOAuth1UserContext,
		OAuthToken:           c.accessToken,
		OAuthTokenSecret:     c.accessSecret,
		APIKey:               c.apiKey,
		APIKeySecret:         c.apiSecret,
		Debug:                logutil.Verbose(),
	})
	if err != nil {
		return nil, fmt.Errorf("create X client: %w", err)
	}
	if !client.IsReady() {
		return nil, fmt.Errorf("twitter client not ready")
	}

	c.api = client
	return client, nil
}

func (c *Client) uploadMedia(ctx context.Context, imagePath string) (string, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q not found", imagePath)}
		}
		return "", fmt.Errorf("read image: %w", err)
	}

	mediaType, category, err := resolveMediaType(imagePath, data)
	if err != nil {
		return "", err
	}

	logutil.Debugf("initialize upload: media_type=%s bytes=%d", mediaType, len(data))
	initRes, err := upload.Initialize(ctx, c.api, &uploadtypes.InitializeInput{
		MediaType:     mediaType,
		TotalBytes:    len(data),
		MediaCategory: category,
	})
	if err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}
	if err := partialError(initRes.Errors); err != nil {
		return "", fmt.Errorf("initialize upload: %w", err)
	}

	mediaID := initRes.Data.MediaID
	logutil.Debugf("initialize complete: media_id=%s", mediaID)

	appendIn := &uploadtypes.AppendInput{
		MediaID:      mediaID,
		Media:        bytes.NewReader(data),
		SegmentIndex: 0,
	}
	appendIn.GenerateBoundary()

	appendRes, err := upload.Append(ctx, c.api, appendIn)
	if err != nil {
		return "", fmt.Errorf("append upload: %w", err)
	}
	if err := partialError(appendRes.Errors); err != nil {
		return "", fmt.Errorf("append upload: %w", err)
	}

	finalizeRes, err := upload.Finalize(ctx, c.api, &uploadtypes.FinalizeInput{MediaID: mediaID})
	if err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}
	if err := partialError(finalizeRes.Errors); err != nil {
		return "", fmt.Errorf("finalize upload: %w", err)
	}

	state := finalizeRes.Data.ProcessingInfo.State
	logutil.Debugf("finalize state=%s media_id=%s", state, mediaID)
	switch state {
	case "", resources.ProcessingInfoStateSucceeded:
		// no-op
	case resources.ProcessingInfoStateInProgress, resources.ProcessingInfoStatePending:
		wait := time.Duration(finalizeRes.Data.ProcessingInfo.CheckAfterSecs) * time.Second
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
			// images finish quickly; one wait is enough in practice.
		}
	default:
		return "", syndicate.ProcessingError{Provider: providerName, Container: mediaID, Reason: fmt.Sprintf("state=%s", state)}
	}

	return mediaID, nil
}

func resolveMediaType(path string, data []byte) (uploadtypes.MediaType, uploadtypes.MediaCategory, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".jpg", ".jpeg":
		return uploadtypes.MediaTypeJPEG, uploadtypes.MediaCategoryTweetImage, nil
	case ".png":
		return uploadtypes.MediaTypePNG, uploadtypes.MediaCategoryTweetImage, nil
	case ".gif":
		return uploadtypes.MediaTypeGIF, uploadtypes.MediaCategoryTweetGIF, nil
	case ".webp":
		return uploadtypes.MediaTypeWebP, uploadtypes.MediaCategoryTweetImage, nil
	}

	// fallback to simple detection
	detected := http.DetectContentType(data)
	switch {
	case strings.Contains(detected, "jpeg"):
		return uploadtypes.MediaTypeJPEG, uploadtypes.MediaCategoryTweetImage, nil
	case strings.Contains(detected, "png"):
		return uploadtypes.MediaTypePNG, uploadtypes.MediaCategoryTweetImage, nil
	case strings.Contains(detected, "gif"):
		return uploadtypes.MediaTypeGIF, uploadtypes.MediaCategoryTweetGIF, nil
	case strings.Contains(detected, "webp"):
		return uploadtypes.MediaTypeWebP, uploadtypes.MediaCategoryTweetImage, nil
	}

	return "", "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("unsupported image type for %q", path)}
}

func partialError(partials []resources.PartialError) error {
	if len(partials) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(partials))
	for _, pe := range partials {
		switch {
		case pe.Detail != nil && *pe.Detail != "":
			msgs = append(msgs, *pe.Detail)
		case pe.Title != nil && *pe.Title != "":
			msgs = append(msgs, *pe.Title)
		case pe.ResourceType != nil:
			msgs = append(msgs, *pe.ResourceType)
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, "unknown error")
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}

func unwrapGotwiError(err error) error {
	var gwErr *gotwi.GotwiError
	if errors.As(err, &gwErr) && gwErr != nil {
		if gwErr.StatusCode == http.StatusUnauthorized {
			return syndicate.AuthError{Provider: providerName, StatusCode: gwErr.StatusCode, Reason: summarizeGotwiError(gwErr)}
		}
		return fmt.Errorf("%s", summarizeGotwiError(gwErr))
	}
	return err
}

func summarizeGotwiError(err *gotwi.GotwiError) string {
	if err == nil {
		return "unknown X API error"
	}

	parts := make([]string, 0, 4)
	if err.Title != "" {
		parts = append(parts, err.Title)
	}
	if err.Detail != "" {
		parts = append(parts, err.Detail)
	}
	for _, apiErr := range err.APIErrors {
		if apiErr.Message != "" {
			parts = append(parts, apiErr.Message)
		}
	}
	if len(parts) == 0 {
		if msg := err.Error(); msg != "" {
			parts = append(parts, msg)
		}
	}
	if len(parts) == 0 {
		parts = append(parts, "X API request failed")
	}

	return strings.Join(parts, "; ")
}
