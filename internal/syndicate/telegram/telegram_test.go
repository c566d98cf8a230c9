package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/blacktop/syndicate/internal/syndicate"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestPost_MissingCredentials(t *testing.T) {
	c := New(syndicate.Settings{})
	_, err := c.Post(context.Background(), syndicate.Request{Text: "hi"})
	var credErr syndicate.CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialError, got %v", err)
	}
	if len(credErr.Missing) != 2 {
		t.Fatalf("expected bot_token and chat_id missing, got %v", credErr.Missing)
	}
}

func TestPost_NonNumericChatID(t *testing.T) {
	c := New(syndicate.Settings{
		"bot_token": "123:abc",
		"chat_id":   "@mychannel",
	})
	_, err := c.Post(context.Background(), syndicate.Request{Text: "hi"})
	var ve syndicate.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for non-numeric chat_id, got %v", err)
	}
}

func TestPost_EmptyRequest(t *testing.T) {
	c := New(syndicate.Settings{
		"bot_token": "123:abc",
		"chat_id":   "-1001234",
	})
	_, err := c.Post(context.Background(), syndicate.Request{})
	var ve syndicate.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty request, got %v", err)
	}
}

func TestRequestFile(t *testing.T) {
	file, err := requestFile("https://cdn.example/pic.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := file.(tgbotapi.FileURL); !ok {
		t.Fatalf("expected FileURL for a remote locator, got %T", file)
	}

	_, err = requestFile("/nonexistent/pic.jpg")
	var ve syndicate.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for a missing file, got %v", err)
	}
}

func TestMapError(t *testing.T) {
	apiErr := &tgbotapi.Error{Code: 401, Message: "Unauthorized"}
	if err := mapError(apiErr, "send"); !syndicate.IsAuth(err) {
		t.Fatalf("expected AuthError for 401, got %v", err)
	}

	other := &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}
	if err := mapError(other, "send"); syndicate.IsAuth(err) {
		t.Fatalf("400 must not map to AuthError, got %v", err)
	}

	plain := errors.New("Unauthorized")
	if err := mapError(plain, "send"); !syndicate.IsAuth(err) {
		t.Fatalf("expected AuthError for the Unauthorized string, got %v", err)
	}
}
