package threads

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blacktop/syndicate/internal/syndicate"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestPoster(t *testing.T, settings syndicate.Settings, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(settings)
	c.graph.BaseURL = srv.URL
	c.sleep = noSleep
	return c
}

func TestPost_Preconditions(t *testing.T) {
	c := newTestPoster(t, syndicate.Settings{}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected")
	}))
	var credErr syndicate.CredentialError
	if _, err := c.Post(context.Background(), syndicate.Request{Text: "hi"}); !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialError, got %v", err)
	}

	c = newTestPoster(t, syndicate.Settings{
		"access_token": "tok",
		"user_id":      "u1",
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected")
	}))
	var ve syndicate.ValidationError
	if _, err := c.Post(context.Background(), syndicate.Request{}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty request, got %v", err)
	}
	if _, err := c.Post(context.Background(), syndicate.Request{
		Text:  "hi",
		Media: []syndicate.MediaRef{"/tmp/pic.jpg"},
	}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for local media, got %v", err)
	}
}

func TestPost_TextOnlyThread(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /u1/threads", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.Form.Get("media_type"); got != "TEXT" {
			t.Errorf("media_type = %q, want TEXT", got)
		}
		if got := r.Form.Get("text"); got != "hello threads" {
			t.Errorf("text = %q", got)
		}
		io.WriteString(w, `{"id":"container-1"}`)
	})
	mux.HandleFunc("GET /container-1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"FINISHED"}`)
	})
	mux.HandleFunc("POST /u1/threads_publish", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.Form.Get("creation_id"); got != "container-1" {
			t.Errorf("creation_id = %q", got)
		}
		io.WriteString(w, `{"id":"thread-1"}`)
	})

	c := newTestPoster(t, syndicate.Settings{
		"access_token": "tok",
		"user_id":      "u1",
	}, mux)

	postID, err := c.Post(context.Background(), syndicate.Request{Text: "hello threads"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if postID != "thread-1" {
		t.Fatalf("post id = %q", postID)
	}
}

func TestPost_LinkAppendedToText(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /u1/threads", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.Form.Get("text"); got != "check this\n\nhttps://blog.example" {
			t.Errorf("text = %q", got)
		}
		io.WriteString(w, `{"id":"container-2"}`)
	})
	mux.HandleFunc("GET /container-2", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"FINISHED"}`)
	})
	mux.HandleFunc("POST /u1/threads_publish", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"thread-2"}`)
	})

	c := newTestPoster(t, syndicate.Settings{
		"access_token": "tok",
		"user_id":      "u1",
	}, mux)

	if _, err := c.Post(context.Background(), syndicate.Request{
		Text: "check this",
		Link: "https://blog.example",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPost_VideoContainer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /u1/threads", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.Form.Get("media_type"); got != "VIDEO" {
			t.Errorf("media_type = %q, want VIDEO", got)
		}
		if got := r.Form.Get("video_url"); got != "https://cdn.example/clip.mp4" {
			t.Errorf("video_url = %q", got)
		}
		io.WriteString(w, `{"id":"container-3"}`)
	})
	mux.HandleFunc("GET /container-3", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"FINISHED"}`)
	})
	mux.HandleFunc("POST /u1/threads_publish", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"thread-3"}`)
	})

	c := newTestPoster(t, syndicate.Settings{
		"access_token": "tok",
		"user_id":      "u1",
	}, mux)

	if _, err := c.Post(context.Background(), syndicate.Request{
		Media: []syndicate.MediaRef{"https://cdn.example/clip.mp4"},
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPost_ProcessingErrorSurfacesDetail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /u1/threads", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"container-4"}`)
	})
	mux.HandleFunc("GET /container-4", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"ERROR","error_message":"media fetch failed"}`)
	})
	mux.HandleFunc("POST /u1/threads_publish", func(w http.ResponseWriter, r *http.Request) {
		t.Error("publish must not run after a processing failure")
	})

	c := newTestPoster(t, syndicate.Settings{
		"access_token": "tok",
		"user_id":      "u1",
	}, mux)

	_, err := c.Post(context.Background(), syndicate.Request{
		Media: []syndicate.MediaRef{"https://cdn.example/pic.jpg"},
	})
	var pe syndicate.ProcessingError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if pe.Reason != "media fetch failed" {
		t.Fatalf("expected platform detail, got %q", pe.Reason)
	}
}

func TestPost_ExpiredTokenRefreshedOnce(t *testing.T) {
	refreshes := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /u1/threads", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("access_token") == "stale" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":{"message":"token expired","code":190}}`)
			return
		}
		io.WriteString(w, `{"id":"container-5"}`)
	})
	mux.HandleFunc("GET /refresh_access_token", func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		if got := r.URL.Query().Get("grant_type"); got != "th_refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.URL.Query().Get("access_token"); got != "long-lived" {
			t.Errorf("refresh carried access_token = %q, want the refresh token", got)
		}
		io.WriteString(w, `{"access_token":"fresh","expires_in":5184000}`)
	})
	mux.HandleFunc("GET /container-5", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"FINISHED"}`)
	})
	mux.HandleFunc("POST /u1/threads_publish", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"id":"thread-5"}`)
	})

	c := newTestPoster(t, syndicate.Settings{
		"access_token":  "stale",
		"refresh_token": "long-lived",
		"user_id":       "u1",
	}, mux)

	postID, err := c.Post(context.Background(), syndicate.Request{Text: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if postID != "thread-5" {
		t.Fatalf("post id = %q", postID)
	}
	if refreshes != 1 {
		t.Fatalf("expected exactly one refresh, got %d", refreshes)
	}
	if c.cred.AccessToken != "fresh" {
		t.Fatalf("access token = %q", c.cred.AccessToken)
	}
}
