package twitter

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/michimani/gotwi"
	uploadtypes "github.com/michimani/gotwi/media/upload/types"
)

func TestPost_MissingCredentials(t *testing.T) {
	tests := []struct {
		name     string
		settings syndicate.Settings
		missing  string
	}{
		{"empty", syndicate.Settings{}, "api_key"},
		{"no secrets", syndicate.Settings{"api_key": "k", "access_token": "t"}, "api_secret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.settings)
			_, err := c.Post(context.Background(), syndicate.Request{Text: "hi"})
			var credErr syndicate.CredentialError
			if !errors.As(err, &credErr) {
				t.Fatalf("expected CredentialError, got %v", err)
			}
			found := false
			for _, m := range credErr.Missing {
				if m == tt.missing {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %q in missing fields, got %v", tt.missing, credErr.Missing)
			}
		})
	}
}

func fullSettings() syndicate.Settings {
	return syndicate.Settings{
		"api_key":       "k",
		"api_secret":    "s",
		"access_token":  "t",
		"access_secret": "ts",
	}
}

func TestPost_Validation(t *testing.T) {
	c := New(fullSettings())
	var ve syndicate.ValidationError

	if _, err := c.Post(context.Background(), syndicate.Request{}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty request, got %v", err)
	}
	if _, err := c.Post(context.Background(), syndicate.Request{
		Text:  "hi",
		Media: []syndicate.MediaRef{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"},
	}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for five images, got %v", err)
	}
	if _, err := c.Post(context.Background(), syndicate.Request{
		Text:  "hi",
		Media: []syndicate.MediaRef{"https://cdn.example/pic.jpg"},
	}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for URL media, got %v", err)
	}
}

func TestResolveMediaType(t *testing.T) {
	tests := []struct {
		path string
		data []byte
		want uploadtypes.MediaType
	}{
		{"pic.jpg", nil, uploadtypes.MediaTypeJPEG},
		{"pic.jpeg", nil, uploadtypes.MediaTypeJPEG},
		{"pic.png", nil, uploadtypes.MediaTypePNG},
		{"anim.gif", nil, uploadtypes.MediaTypeGIF},
		{"pic.webp", nil, uploadtypes.MediaTypeWebP},
		{"noext", []byte("\x89PNG\r\n\x1a\n trailing"), uploadtypes.MediaTypePNG},
	}
	for _, tt := range tests {
		got, _, err := resolveMediaType(tt.path, tt.data)
		if err != nil {
			t.Errorf("resolveMediaType(%q): %v", tt.path, err)
			continue
		}
		if got != tt.want {
			t.Errorf("resolveMediaType(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if _, _, err := resolveMediaType("doc.txt", []byte("plain text content")); err == nil {
		t.Error("expected an error for an unsupported type")
	}
}

func TestUploadMedia_MissingFile(t *testing.T) {
	c := New(fullSettings())
	missing := filepath.Join(t.TempDir(), "absent.jpg")
	_, err := c.uploadMedia(context.Background(), missing)
	var ve syndicate.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for a missing file, got %v", err)
	}
	if _, statErr := os.Stat(missing); statErr == nil {
		t.Fatal("test file unexpectedly exists")
	}
}

func TestUnwrapGotwiError(t *testing.T) {
	plain := errors.New("dial tcp: connection refused")
	if got := unwrapGotwiError(plain); !errors.Is(got, plain) {
		t.Fatalf("plain errors must pass through, got %v", got)
	}

	gwErr := &gotwi.GotwiError{}
	gwErr.StatusCode = http.StatusUnauthorized
	gwErr.Title = "Unauthorized"
	if got := unwrapGotwiError(gwErr); !syndicate.IsAuth(got) {
		t.Fatalf("expected 401 to map to AuthError, got %v", got)
	}

	forbidden := &gotwi.GotwiError{}
	forbidden.StatusCode = http.StatusForbidden
	forbidden.Title = "Forbidden"
	if got := unwrapGotwiError(forbidden); syndicate.IsAuth(got) {
		t.Fatalf("403 must not map to AuthError, got %v", got)
	}
}
