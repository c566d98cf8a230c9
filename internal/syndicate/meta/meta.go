// Package meta holds the Graph API plumbing shared by the Instagram,
// Threads, and Facebook providers: request signing with the stored access
// token, the common error envelope, and authorization-failure mapping.
package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blacktop/syndicate/internal/syndicate"
)

const (
	// GraphBaseURL is the Facebook Graph API root used by the Instagram
	// and Facebook providers.
	GraphBaseURL = "https://graph.facebook.com/v21.0"
	// ThreadsBaseURL is the Threads Graph API root.
	ThreadsBaseURL = "https://graph.threads.net/v1.0"

	requestTimeout = 30 * time.Second

	// Graph error code for expired or invalidated access tokens.
	codeInvalidToken = 190
)

// Client is a thin Graph API caller bound to one provider's credential.
// The credential is read at call time so a mid-request refresh takes
// effect on the retried call.
type Client struct {
	Provider string
	BaseURL  string
	Cred     *syndicate.Credential
	HTTP     *http.Client
}

// NewClient builds a Graph client for the given provider and API root.
func NewClient(provider, baseURL string, cred *syndicate.Credential) *Client {
	return &Client{
		Provider: provider,
		BaseURL:  baseURL,
		Cred:     cred,
		HTTP:     &http.Client{Timeout: requestTimeout},
	}
}

type apiError struct {
	Err struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
}

// Get performs a GET against path with the access token appended.
func (c *Client) Get(ctx context.Context, path string, params url.Values, out any) error {
	return c.call(ctx, http.MethodGet, path, params, out)
}

// Post performs a form-encoded POST against path with the access token
// appended.
func (c *Client) Post(ctx context.Context, path string, params url.Values, out any) error {
	return c.call(ctx, http.MethodPost, path, params, out)
}

func (c *Client) call(ctx context.Context, method, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	// Token refresh calls carry their own access_token (the refresh token);
	// only inject the stored one when the caller set none.
	if params.Get("access_token") == "" {
		params.Set("access_token", c.Cred.AccessToken)
	}

	endpoint := c.BaseURL + path
	var req *http.Request
	var err error
	switch method {
	case http.MethodGet:
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	default:
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read graph response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.mapError(resp.StatusCode, body)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode graph response: %w", err)
		}
	}
	return nil
}

// PostFile performs a multipart POST with one file part plus the given
// form fields, used for local-file photo and video uploads.
func (c *Client) PostFile(ctx context.Context, path string, params url.Values, field, filename string, file io.Reader, out any) error {
	var buf strings.Builder
	writer := multipart.NewWriter(&buf)
	for key := range params {
		if err := writer.WriteField(key, params.Get(key)); err != nil {
			return fmt.Errorf("write form field: %w", err)
		}
	}
	if params.Get("access_token") == "" {
		if err := writer.WriteField("access_token", c.Cred.AccessToken); err != nil {
			return fmt.Errorf("write form field: %w", err)
		}
	}
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy media: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finish multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, strings.NewReader(buf.String()))
	if err != nil {
		return fmt.Errorf("build graph request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read graph response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return c.mapError(resp.StatusCode, body)
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode graph response: %w", err)
		}
	}
	return nil
}

// mapError converts a Graph error envelope into the shared taxonomy:
// HTTP 401 and error code 190 become AuthError, everything else keeps the
// platform message as a plain error.
func (c *Client) mapError(status int, body []byte) error {
	var envelope apiError
	_ = json.Unmarshal(body, &envelope)

	reason := envelope.Err.Message
	if reason == "" {
		reason = strings.TrimSpace(string(body))
	}

	if status == http.StatusUnauthorized || envelope.Err.Code == codeInvalidToken {
		return syndicate.AuthError{Provider: c.Provider, StatusCode: status, Reason: reason}
	}
	return fmt.Errorf("%s graph error (status %d, code %d): %s", c.Provider, status, envelope.Err.Code, reason)
}
