package slack

import (
	"context"
	"errors"
	"testing"

	"github.com/blacktop/syndicate/internal/syndicate"
)

func TestPost_MissingCredentials(t *testing.T) {
	c := New(syndicate.Settings{})
	_, err := c.Post(context.Background(), syndicate.Request{Text: "hi"})
	var credErr syndicate.CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialError, got %v", err)
	}
	if len(credErr.Missing) != 2 {
		t.Fatalf("expected bot_token and channel_id missing, got %v", credErr.Missing)
	}
}

func TestPost_EmptyRequest(t *testing.T) {
	c := New(syndicate.Settings{
		"bot_token":  "xoxb-1",
		"channel_id": "C123",
	})
	_, err := c.Post(context.Background(), syndicate.Request{})
	var ve syndicate.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty request, got %v", err)
	}
}

func TestPost_MissingLocalFile(t *testing.T) {
	c := New(syndicate.Settings{
		"bot_token":  "xoxb-1",
		"channel_id": "C123",
	})
	_, err := c.Post(context.Background(), syndicate.Request{
		Media: []syndicate.MediaRef{"/nonexistent/pic.jpg"},
	})
	var ve syndicate.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for a missing file, got %v", err)
	}
}

func TestMapError(t *testing.T) {
	if err := mapError(errors.New("invalid_auth"), "post message"); !syndicate.IsAuth(err) {
		t.Fatalf("expected AuthError for invalid_auth, got %v", err)
	}
	if err := mapError(errors.New("token_expired"), "post message"); !syndicate.IsAuth(err) {
		t.Fatalf("expected AuthError for token_expired, got %v", err)
	}
	if err := mapError(errors.New("channel_not_found"), "post message"); syndicate.IsAuth(err) {
		t.Fatalf("channel_not_found must not map to AuthError, got %v", err)
	}
}
