package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/blacktop/syndicate/internal/syndicate"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	youtubeapi "google.golang.org/api/youtube/v3"
)

const (
	providerName = "youtube"

	defaultPrivacy = "public"

	pollInterval = 10 * time.Second
	maxPolls     = 30
)

// Client uploads videos through the YouTube Data API. YouTube is
// video-only and upload-only: a request without a local video file is
// rejected before any network call. Token refresh is delegated to the
// oauth2 token source, which rotates the access token transparently.
type Client struct {
	cred         *syndicate.Credential
	clientID     string
	clientSecret string
	privacy      string

	service *youtubeapi.Service
	sleep   func(ctx context.Context, d time.Duration) error
}

// New builds a YouTube poster from its settings.
func New(settings syndicate.Settings) *Client {
	privacy := settings.Get("privacy")
	if privacy == "" {
		privacy = defaultPrivacy
	}
	return &Client{
		cred: &syndicate.Credential{
			AccessToken:  settings.Get("access_token"),
			RefreshToken: settings.Get("refresh_token"),
		},
		clientID:     settings.Get("client_id"),
		clientSecret: settings.Get("client_secret"),
		privacy:      privacy,
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post uploads one video privately, waits for YouTube to finish
// processing it, then flips it to the configured privacy status.
func (c *Client) Post(ctx context.Context, req syndicate.Request) (string, error) {
	if err := c.precheck(); err != nil {
		return "", err
	}
	if len(req.Media) == 0 {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "youtube requires a video"}
	}
	media := req.Media[0]
	if media.IsURL() {
		return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("video %q must be a local file", media)}
	}
	if media.Kind() != syndicate.MediaVideo {
		return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q is not a video", media)}
	}

	file, err := os.Open(media.String())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("video %q not found", media)}
		}
		return "", fmt.Errorf("open video: %w", err)
	}
	defer file.Close()

	service, err := c.connect(ctx)
	if err != nil {
		return "", err
	}

	description := req.Text
	if req.Link != "" {
		description = strings.TrimSpace(description + "\n\n" + req.Link)
	}

	pipeline := syndicate.Pipeline{
		Provider: providerName,
		Register: func(ctx context.Context) (string, error) {
			return c.uploadVideo(ctx, service, file, firstLine(req.Text), description)
		},
		Poll: func(ctx context.Context, videoID string) (syndicate.PollState, error) {
			return c.pollVideo(ctx, service, videoID)
		},
		Publish: func(ctx context.Context, videoID string) (string, error) {
			return c.setPrivacy(ctx, service, videoID)
		},
		PollInterval: pollInterval,
		MaxPolls:     maxPolls,
		Sleep:        c.sleep,
	}
	return pipeline.Run(ctx)
}

func (c *Client) precheck() error {
	var missing []string
	if c.clientID == "" {
		missing = append(missing, "client_id")
	}
	if c.clientSecret == "" {
		missing = append(missing, "client_secret")
	}
	if !c.cred.HasAccess() && !c.cred.Refreshable() {
		missing = append(missing, "access_token or refresh_token")
	}
	if len(missing) > 0 {
		return syndicate.CredentialError{Provider: providerName, Missing: missing}
	}
	return nil
}

func (c *Client) connect(ctx context.Context) (*youtubeapi.Service, error) {
	if c.service != nil {
		return c.service, nil
	}

	conf := &oauth2.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		Endpoint:     googleoauth.Endpoint,
		Scopes:       []string{youtubeapi.YoutubeUploadScope},
	}
	token := &oauth2.Token{
		AccessToken:  c.cred.AccessToken,
		RefreshToken: c.cred.RefreshToken,
	}
	if token.AccessToken == "" {
		// Force the token source to refresh before the first call.
		token.Expiry = time.Now().Add(-time.Minute)
	}

	service, err := youtubeapi.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	c.service = service
	return service, nil
}

func (c *Client) uploadVideo(ctx context.Context, service *youtubeapi.Service, file *os.File, title, description string) (string, error) {
	if title == "" {
		title = "Untitled upload"
	}
	video := &youtubeapi.Video{
		Snippet: &youtubeapi.VideoSnippet{
			Title:       title,
			Description: description,
		},
		Status: &youtubeapi.VideoStatus{PrivacyStatus: "private"},
	}

	res, err := service.Videos.Insert([]string{"snippet", "status"}, video).Media(file).Context(ctx).Do()
	if err != nil {
		return "", mapError(err, "upload video")
	}
	if res.Id == "" {
		return "", fmt.Errorf("upload video: empty video id")
	}
	return res.Id, nil
}

func (c *Client) pollVideo(ctx context.Context, service *youtubeapi.Service, videoID string) (syndicate.PollState, error) {
	res, err := service.Videos.List([]string{"status", "processingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return syndicate.PollState{}, mapError(err, "poll video")
	}
	if len(res.Items) == 0 {
		return syndicate.PollState{}, fmt.Errorf("poll video: video %s not found", videoID)
	}

	status := res.Items[0].Status
	switch status.UploadStatus {
	case "processed":
		return syndicate.PollState{Phase: syndicate.PollReady}, nil
	case "failed", "rejected":
		return syndicate.PollState{Phase: syndicate.PollFailed, Detail: status.FailureReason + status.RejectionReason}, nil
	default:
		return syndicate.PollState{Phase: syndicate.PollProcessing, Detail: status.UploadStatus}, nil
	}
}

func (c *Client) setPrivacy(ctx context.Context, service *youtubeapi.Service, videoID string) (string, error) {
	video := &youtubeapi.Video{
		Id:     videoID,
		Status: &youtubeapi.VideoStatus{PrivacyStatus: c.privacy},
	}
	if _, err := service.Videos.Update([]string{"status"}, video).Context(ctx).Do(); err != nil {
		return "", mapError(err, "publish video")
	}
	return videoID, nil
}

func mapError(err error, op string) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized {
		return syndicate.AuthError{Provider: providerName, StatusCode: apiErr.Code, Reason: apiErr.Message}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}
