package facebook

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/blacktop/syndicate/internal/syndicate"
)

func newTestPoster(t *testing.T, settings syndicate.Settings, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(settings)
	c.graph.BaseURL = srv.URL
	return c
}

func TestPost_Preconditions(t *testing.T) {
	c := newTestPoster(t, syndicate.Settings{"access_token": "tok"}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected")
	}))
	var credErr syndicate.CredentialError
	if _, err := c.Post(context.Background(), syndicate.Request{Text: "hi"}); !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialError without page_id, got %v", err)
	}

	c = newTestPoster(t, syndicate.Settings{
		"access_token": "tok",
		"page_id":      "p1",
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected")
	}))
	var ve syndicate.ValidationError
	if _, err := c.Post(context.Background(), syndicate.Request{}); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty request, got %v", err)
	}
}

func TestPost_FeedMessage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /p1/feed", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.Form.Get("message"); got != "page update" {
			t.Errorf("message = %q", got)
		}
		if got := r.Form.Get("link"); got != "https://blog.example" {
			t.Errorf("link = %q", got)
		}
		io.WriteString(w, `{"id":"p1_100"}`)
	})

	c := newTestPoster(t, syndicate.Settings{
		"access_token": "tok",
		"page_id":      "p1",
	}, mux)

	postID, err := c.Post(context.Background(), syndicate.Request{
		Text: "page update",
		Link: "https://blog.example",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if postID != "p1_100" {
		t.Fatalf("post id = %q", postID)
	}
}

func TestPost_PhotoByURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /p1/photos", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.Form.Get("url"); got != "https://cdn.example/pic.jpg" {
			t.Errorf("url = %q", got)
		}
		if got := r.Form.Get("caption"); got != "nice pic" {
			t.Errorf("caption = %q", got)
		}
		io.WriteString(w, `{"id":"photo-1","post_id":"p1_101"}`)
	})

	c := newTestPoster(t, syndicate.Settings{
		"access_token": "tok",
		"page_id":      "p1",
	}, mux)

	postID, err := c.Post(context.Background(), syndicate.Request{
		Text:  "nice pic",
		Media: []syndicate.MediaRef{"https://cdn.example/pic.jpg"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if postID != "p1_101" {
		t.Fatalf("post id = %q, want the post_id over the media id", postID)
	}
}

func TestPost_VideoByURLUsesVideosEdge(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /p1/videos", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if got := r.Form.Get("file_url"); got != "https://cdn.example/clip.mp4" {
			t.Errorf("file_url = %q", got)
		}
		if got := r.Form.Get("description"); got != "new clip" {
			t.Errorf("description = %q", got)
		}
		io.WriteString(w, `{"id":"video-1"}`)
	})

	c := newTestPoster(t, syndicate.Settings{
		"access_token": "tok",
		"page_id":      "p1",
	}, mux)

	postID, err := c.Post(context.Background(), syndicate.Request{
		Text:  "new clip",
		Media: []syndicate.MediaRef{"https://cdn.example/clip.mp4"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if postID != "video-1" {
		t.Fatalf("post id = %q", postID)
	}
}

func TestPost_LocalPhotoUploadedMultipart(t *testing.T) {
	image := filepath.Join(t.TempDir(), "pic.jpg")
	if err := os.WriteFile(image, []byte("jpegbytes"), 0o600); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /p1/photos", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		file, header, err := r.FormFile("source")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		if header.Filename != "pic.jpg" {
			t.Errorf("filename = %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "jpegbytes" {
			t.Errorf("file body = %q", data)
		}
		io.WriteString(w, `{"id":"photo-2","post_id":"p1_102"}`)
	})

	c := newTestPoster(t, syndicate.Settings{
		"access_token": "tok",
		"page_id":      "p1",
	}, mux)

	postID, err := c.Post(context.Background(), syndicate.Request{
		Media: []syndicate.MediaRef{syndicate.MediaRef(image)},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if postID != "p1_102" {
		t.Fatalf("post id = %q", postID)
	}
}

func TestPost_MissingLocalFileIsValidationError(t *testing.T) {
	c := newTestPoster(t, syndicate.Settings{
		"access_token": "tok",
		"page_id":      "p1",
	}, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected")
	}))

	_, err := c.Post(context.Background(), syndicate.Request{
		Media: []syndicate.MediaRef{"/nonexistent/pic.jpg"},
	})
	var ve syndicate.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for a missing file, got %v", err)
	}
}

func TestPost_ExpiredTokenRefreshedOnce(t *testing.T) {
	refreshes := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /p1/feed", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.Form.Get("access_token") == "stale" {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":{"message":"token expired","code":190}}`)
			return
		}
		io.WriteString(w, `{"id":"p1_103"}`)
	})
	mux.HandleFunc("GET /oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		io.WriteString(w, `{"access_token":"fresh","expires_in":5184000}`)
	})

	c := newTestPoster(t, syndicate.Settings{
		"access_token":  "stale",
		"refresh_token": "long-lived",
		"page_id":       "p1",
		"client_id":     "app",
		"client_secret": "secret",
	}, mux)

	postID, err := c.Post(context.Background(), syndicate.Request{Text: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if postID != "p1_103" {
		t.Fatalf("post id = %q", postID)
	}
	if refreshes != 1 {
		t.Fatalf("expected exactly one refresh, got %d", refreshes)
	}
}

func TestStats(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /p1", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"name":"My Page","fan_count":500,"followers_count":620}`)
	})

	c := newTestPoster(t, syndicate.Settings{
		"access_token": "tok",
		"page_id":      "p1",
	}, mux)

	stats, err := c.Stats(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats["name"] != "My Page" || stats["followers"] != int64(620) {
		t.Fatalf("unexpected stats %v", stats)
	}
}
