package mastodon

import (
	"context"
	"errors"
	"testing"

	"github.com/blacktop/syndicate/internal/syndicate"
)

func TestPost_MissingCredentials(t *testing.T) {
	c := New(syndicate.Settings{"server": "https://mastodon.example"})
	_, err := c.Post(context.Background(), syndicate.Request{Text: "hi"})
	var credErr syndicate.CredentialError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialError without access_token, got %v", err)
	}
}

func TestPost_Validation(t *testing.T) {
	c := New(syndicate.Settings{
		"server":       "https://mastodon.example",
		"access_token": "tok",
	})
	var ve syndicate.ValidationError

	if _, err := c.Post(context.Background(), syndicate.Request{}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty request, got %v", err)
	}
	if _, err := c.Post(context.Background(), syndicate.Request{
		Text:  "hi",
		Media: []syndicate.MediaRef{"https://cdn.example/pic.jpg"},
	}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for URL media, got %v", err)
	}
	if _, err := c.Post(context.Background(), syndicate.Request{
		Text:  "hi",
		Media: []syndicate.MediaRef{"/nonexistent/pic.jpg"},
	}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for a missing file, got %v", err)
	}
}
