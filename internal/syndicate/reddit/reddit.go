package reddit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/blacktop/syndicate/internal/syndicate"
)

const (
	providerName = "reddit"

	defaultBaseURL  = "https://oauth.reddit.com"
	defaultTokenURL = "https://www.reddit.com/api/v1/access_token"

	userAgent      = "syndicate/1 (multi-platform publisher)"
	requestTimeout = 30 * time.Second
)

// Client submits posts to a configured subreddit. Text becomes a self
// post; a link or image URL becomes a link post. Local files are rejected
// since the submit endpoint only takes URLs.
type Client struct {
	cred         *syndicate.Credential
	subreddit    string
	clientID     string
	clientSecret string

	baseURL  string
	tokenURL string
	http     *http.Client
}

// New builds a Reddit poster from its settings.
func New(settings syndicate.Settings) *Client {
	return &Client{
		cred: &syndicate.Credential{
			AccessToken:  settings.Get("access_token"),
			RefreshToken: settings.Get("refresh_token"),
		},
		subreddit:    settings.Get("subreddit"),
		clientID:     settings.Get("client_id"),
		clientSecret: settings.Get("client_secret"),
		baseURL:      defaultBaseURL,
		tokenURL:     defaultTokenURL,
		http:         &http.Client{Timeout: requestTimeout},
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post submits one post to the configured subreddit.
func (c *Client) Post(ctx context.Context, req syndicate.Request) (string, error) {
	if err := c.precheck(); err != nil {
		return "", err
	}
	if req.Text == "" {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "a title is required (text field)"}
	}

	linkURL := req.Link
	if len(req.Media) > 0 {
		media := req.Media[0]
		if !media.IsURL() {
			return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q must be a public URL", media)}
		}
		linkURL = media.String()
	}

	var postID string
	err := syndicate.Guarded(ctx, c.cred, c.refresh, func(ctx context.Context) error {
		var err error
		postID, err = c.submit(ctx, req.Text, linkURL)
		return err
	})
	return postID, err
}

func (c *Client) precheck() error {
	var missing []string
	if !c.cred.HasAccess() {
		missing = append(missing, "access_token")
	}
	if c.subreddit == "" {
		missing = append(missing, "subreddit")
	}
	if len(missing) > 0 {
		return syndicate.CredentialError{Provider: providerName, Missing: missing}
	}
	return nil
}

func (c *Client) submit(ctx context.Context, title, linkURL string) (string, error) {
	form := url.Values{}
	form.Set("sr", c.subreddit)
	form.Set("title", firstLine(title))
	form.Set("api_type", "json")
	if linkURL != "" {
		form.Set("kind", "link")
		form.Set("url", linkURL)
	} else {
		form.Set("kind", "self")
		form.Set("text", title)
	}

	raw, err := c.call(ctx, http.MethodPost, c.baseURL+"/api/submit", form)
	if err != nil {
		return "", err
	}

	var out struct {
		JSON struct {
			Errors [][]any `json:"errors"`
			Data   struct {
				ID   string `json:"id"`
				Name string `json:"name"`
				URL  string `json:"url"`
			} `json:"data"`
		} `json:"json"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if len(out.JSON.Errors) > 0 {
		return "", fmt.Errorf("reddit rejected submission: %v", out.JSON.Errors)
	}
	if out.JSON.Data.Name != "" {
		return out.JSON.Data.Name, nil
	}
	return out.JSON.Data.ID, nil
}

func (c *Client) call(ctx context.Context, method, endpoint string, form url.Values) ([]byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cred.AccessToken)
	req.Header.Set("User-Agent", userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reddit request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, syndicate.AuthError{Provider: providerName, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("reddit error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

// refresh exchanges the refresh token using basic client authentication.
func (c *Client) refresh(ctx context.Context, cred *syndicate.Credential) error {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", cred.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if out.AccessToken == "" {
		return fmt.Errorf("refresh token: empty access token in response")
	}
	cred.Update(out.AccessToken, out.RefreshToken, out.ExpiresIn)
	return nil
}

// Stats reports subscriber counts for the configured subreddit.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	if err := c.precheck(); err != nil {
		return nil, err
	}

	var raw []byte
	err := syndicate.Guarded(ctx, c.cred, c.refresh, func(ctx context.Context) error {
		var err error
		raw, err = c.call(ctx, http.MethodGet, c.baseURL+"/r/"+c.subreddit+"/about", nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Data struct {
			Subscribers   int64 `json:"subscribers"`
			ActiveUserNum int64 `json:"active_user_count"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode about response: %w", err)
	}
	return map[string]any{
		"subreddit":   c.subreddit,
		"subscribers": out.Data.Subscribers,
		"active":      out.Data.ActiveUserNum,
	}, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
