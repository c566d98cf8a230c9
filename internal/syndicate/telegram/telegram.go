package telegram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/blacktop/syndicate/internal/syndicate"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const providerName = "telegram"

// Client sends to a chat or channel through the Bot API. Media kind is
// inferred from the locator extension; both URLs and local files work
// since the Bot API accepts either form.
type Client struct {
	botToken string
	chatID   int64
	chatErr  error

	bot *tgbotapi.BotAPI
}

// New builds a Telegram poster from its settings.
func New(settings syndicate.Settings) *Client {
	c := &Client{botToken: settings.Get("bot_token")}
	if raw := settings.Get("chat_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.chatErr = syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("chat_id %q is not numeric", raw)}
		} else {
			c.chatID = id
		}
	}
	return c
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post sends one message, photo, or video to the configured chat.
func (c *Client) Post(ctx context.Context, req syndicate.Request) (string, error) {
	if err := c.precheck(); err != nil {
		return "", err
	}
	if req.Text == "" && req.Link == "" && len(req.Media) == 0 {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "either text, link, or media is required"}
	}

	bot, err := c.connect()
	if err != nil {
		return "", err
	}

	text := req.Text
	if req.Link != "" {
		text = strings.TrimSpace(text + "\n" + req.Link)
	}

	var chattable tgbotapi.Chattable
	if len(req.Media) > 0 {
		media := req.Media[0]
		file, err := requestFile(media)
		if err != nil {
			return "", err
		}
		if media.Kind() == syndicate.MediaVideo {
			video := tgbotapi.NewVideo(c.chatID, file)
			video.Caption = text
			chattable = video
		} else {
			photo := tgbotapi.NewPhoto(c.chatID, file)
			photo.Caption = text
			chattable = photo
		}
	} else {
		chattable = tgbotapi.NewMessage(c.chatID, text)
	}

	message, err := bot.Send(chattable)
	if err != nil {
		return "", mapError(err, "send message")
	}
	return strconv.Itoa(message.MessageID), nil
}

// Stats reports the member count of the configured chat.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	if err := c.precheck(); err != nil {
		return nil, err
	}
	bot, err := c.connect()
	if err != nil {
		return nil, err
	}

	count, err := bot.GetChatMembersCount(tgbotapi.ChatMemberCountConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: c.chatID},
	})
	if err != nil {
		return nil, mapError(err, "get chat member count")
	}
	return map[string]any{
		"chat_id": c.chatID,
		"members": count,
	}, nil
}

func (c *Client) precheck() error {
	var missing []string
	if c.botToken == "" {
		missing = append(missing, "bot_token")
	}
	if c.chatID == 0 && c.chatErr == nil {
		missing = append(missing, "chat_id")
	}
	if len(missing) > 0 {
		return syndicate.CredentialError{Provider: providerName, Missing: missing}
	}
	return c.chatErr
}

// connect lazily authenticates the bot; the Bot API validates the token
// with a getMe call on construction.
func (c *Client) connect() (*tgbotapi.BotAPI, error) {
	if c.bot != nil {
		return c.bot, nil
	}
	bot, err := tgbotapi.NewBotAPI(c.botToken)
	if err != nil {
		return nil, mapError(err, "authenticate bot")
	}
	c.bot = bot
	return bot, nil
}

func requestFile(media syndicate.MediaRef) (tgbotapi.RequestFileData, error) {
	if media.IsURL() {
		return tgbotapi.FileURL(media.String()), nil
	}
	if _, err := os.Stat(media.String()); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q not found", media)}
		}
		return nil, fmt.Errorf("stat media: %w", err)
	}
	return tgbotapi.FilePath(media.String()), nil
}

// mapError translates Bot API failures into the shared taxonomy. The Bot
// API reports a bad token as HTTP 401 with "Unauthorized".
func mapError(err error, op string) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 401 {
		return syndicate.AuthError{Provider: providerName, StatusCode: apiErr.Code, Reason: apiErr.Message}
	}
	if strings.Contains(err.Error(), "Unauthorized") {
		return syndicate.AuthError{Provider: providerName, StatusCode: 401, Reason: err.Error()}
	}
	return fmt.Errorf("%s: %w", op, err)
}
