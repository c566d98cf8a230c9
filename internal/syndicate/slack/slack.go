package slack

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blacktop/syndicate/internal/syndicate"
	slackapi "github.com/slack-go/slack"
)

const providerName = "slack"

// Client posts to a channel with a bot token. Bot tokens do not rotate,
// so there is no refresh path. Local files are uploaded; media URLs are
// attached as image attachments.
type Client struct {
	botToken  string
	channelID string

	api *slackapi.Client
}

// New builds a Slack poster from its settings.
func New(settings syndicate.Settings) *Client {
	return &Client{
		botToken:  settings.Get("bot_token"),
		channelID: settings.Get("channel_id"),
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post sends one message (or file upload) to the configured channel.
func (c *Client) Post(ctx context.Context, req syndicate.Request) (string, error) {
	if err := c.precheck(); err != nil {
		return "", err
	}
	if req.Text == "" && req.Link == "" && len(req.Media) == 0 {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "either text, link, or media is required"}
	}

	api := c.client()

	text := req.Text
	if req.Link != "" {
		text = strings.TrimSpace(text + "\n" + req.Link)
	}

	if len(req.Media) > 0 && !req.Media[0].IsURL() {
		return c.uploadFile(ctx, api, req.Media[0], text)
	}

	options := []slackapi.MsgOption{slackapi.MsgOptionText(text, false)}
	if len(req.Media) > 0 {
		options = append(options, slackapi.MsgOptionAttachments(slackapi.Attachment{
			ImageURL: req.Media[0].String(),
			Text:     text,
		}))
	}

	_, timestamp, err := api.PostMessageContext(ctx, c.channelID, options...)
	if err != nil {
		return "", mapError(err, "post message")
	}
	return timestamp, nil
}

func (c *Client) uploadFile(ctx context.Context, api *slackapi.Client, media syndicate.MediaRef, text string) (string, error) {
	info, err := os.Stat(media.String())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q not found", media)}
		}
		return "", fmt.Errorf("stat media: %w", err)
	}

	summary, err := api.UploadFileV2Context(ctx, slackapi.UploadFileV2Parameters{
		Channel:        c.channelID,
		File:           media.String(),
		Filename:       filepath.Base(media.String()),
		FileSize:       int(info.Size()),
		InitialComment: text,
	})
	if err != nil {
		return "", mapError(err, "upload file")
	}
	return summary.ID, nil
}

func (c *Client) precheck() error {
	var missing []string
	if c.botToken == "" {
		missing = append(missing, "bot_token")
	}
	if c.channelID == "" {
		missing = append(missing, "channel_id")
	}
	if len(missing) > 0 {
		return syndicate.CredentialError{Provider: providerName, Missing: missing}
	}
	return nil
}

func (c *Client) client() *slackapi.Client {
	if c.api == nil {
		c.api = slackapi.New(c.botToken)
	}
	return c.api
}

// mapError translates Slack's string error codes into the shared taxonomy.
func mapError(err error, op string) error {
	msg := err.Error()
	if strings.Contains(msg, "invalid_auth") || strings.Contains(msg, "token_revoked") || strings.Contains(msg, "token_expired") {
		return syndicate.AuthError{Provider: providerName, Reason: msg}
	}
	return fmt.Errorf("%s: %w", op, err)
}
