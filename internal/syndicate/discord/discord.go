package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/bwmarrin/discordgo"
)

const providerName = "discord"

// Client posts messages to a channel through a bot token. Bot tokens do
// not expire, so no refresh path exists; authorization failures surface
// as-is. Media may be a local file (attached) or a URL (embedded).
type Client struct {
	botToken  string
	channelID string

	session *discordgo.Session
}

// New builds a Discord poster from its settings.
func New(settings syndicate.Settings) *Client {
	return &Client{
		botToken:  settings.Get("bot_token"),
		channelID: settings.Get("channel_id"),
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post sends one message to the configured channel.
func (c *Client) Post(ctx context.Context, req syndicate.Request) (string, error) {
	if err := c.precheck(); err != nil {
		return "", err
	}
	if req.Text == "" && req.Link == "" && len(req.Media) == 0 {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "either text, link, or media is required"}
	}

	session, err := c.connect()
	if err != nil {
		return "", err
	}

	content := req.Text
	if req.Link != "" {
		content = strings.TrimSpace(content + "\n" + req.Link)
	}

	send := &discordgo.MessageSend{Content: content}
	if len(req.Media) > 0 {
		media := req.Media[0]
		if media.IsURL() {
			send.Embeds = []*discordgo.MessageEmbed{{
				Image: &discordgo.MessageEmbedImage{URL: media.String()},
			}}
		} else {
			file, err := os.Open(media.String())
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q not found", media)}
				}
				return "", fmt.Errorf("open media: %w", err)
			}
			defer file.Close()
			send.Files = []*discordgo.File{{
				Name:   filepath.Base(media.String()),
				Reader: file,
			}}
		}
	}

	message, err := session.ChannelMessageSendComplex(c.channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError(err)
	}
	return message.ID, nil
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

// connect lazily builds the REST-only session. The gateway is never
// opened; message sends are plain HTTP calls.
func (c *Client) connect() (*discordgo.Session, error) {
	if c.session != nil {
		return c.session, nil
	}
	session, err := discordgo.New("Bot " + c.botToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	c.session = session
	return session, nil
}

func mapError(err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusUnauthorized {
		reason := ""
		if restErr.Message != nil {
			reason = restErr.Message.Message
		}
		return syndicate.AuthError{Provider: providerName, StatusCode: http.StatusUnauthorized, Reason: reason}
	}
	return fmt.Errorf("send message: %w", err)
}
