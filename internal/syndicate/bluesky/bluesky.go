package bluesky

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/blacktop/syndicate/internal/syndicate"
	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
)

const (
	providerName   = "bluesky"
	defaultPDSURL  = "https://bsky.social"
	requestTimeout = 30 * time.Second
)

// Client posts to Bluesky over XRPC. Sessions are created lazily on first
// use; an expired access JWT triggers the shared refresh guard, which
// swaps in the session's refresh JWT. Media must be local files.
type Client struct {
	handle      string
	appPassword string
	pdsURL      string

	cred   *syndicate.Credential
	client *xrpc.Client
	did    string
}

// New builds a Bluesky poster from its settings.
func New(settings syndicate.Settings) *Client {
	pdsURL := settings.Get("pds_url")
	if pdsURL == "" {
		pdsURL = defaultPDSURL
	}
	return &Client{
		handle:      settings.Get("handle"),
		appPassword: settings.Get("app_password"),
		pdsURL:      pdsURL,
		cred:        &syndicate.Credential{},
	}
}

// Name identifies the provider.
func (c *Client) Name() string { return providerName }

// Post creates a Bluesky post with optional image embeds.
func (c *Client) Post(ctx context.Context, req syndicate.Request) (string, error) {
	if err := c.precheck(); err != nil {
		return "", err
	}

	text := req.Text
	if req.Link != "" {
		text = strings.TrimSpace(text + "\n\n" + req.Link)
	}
	if text == "" && len(req.Media) == 0 {
		return "", syndicate.ValidationError{Provider: providerName, Reason: "either text or media is required"}
	}
	for _, media := range req.Media {
		if media.IsURL() {
			return "", syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("media %q must be a local file", media)}
		}
	}

	if err := c.connect(ctx); err != nil {
		return "", err
	}

	var postURI string
	err := syndicate.Guarded(ctx, c.cred, c.refresh, func(ctx context.Context) error {
		var err error
		postURI, err = c.createPost(ctx, text, req.Media)
		return err
	})
	return postURI, err
}

func (c *Client) precheck() error {
	var missing []string
	if c.handle == "" {
		missing = append(missing, "handle")
	}
	if c.appPassword == "" {
		missing = append(missing, "app_password")
	}
	if len(missing) > 0 {
		return syndicate.CredentialError{Provider: providerName, Missing: missing}
	}
	return nil
}

// connect creates the XRPC session on first use and seeds the credential
// with the session JWTs.
func (c *Client) connect(ctx context.Context) error {
	if c.client != nil {
		return nil
	}

	userAgent := "syndicate/1"
	client := &xrpc.Client{
		Client:    &http.Client{Timeout: requestTimeout},
		Host:      c.pdsURL,
		UserAgent: &userAgent,
	}

	session, err := atproto.ServerCreateSession(ctx, client, &atproto.ServerCreateSession_Input{
		Identifier: c.handle,
		Password:   c.appPassword,
	})
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}
	c.client = client
	c.did = session.Did
	c.cred.Update(session.AccessJwt, session.RefreshJwt, 0)
	return nil
}

func (c *Client) createPost(ctx context.Context, text string, media []syndicate.MediaRef) (string, error) {
	post := &bsky.FeedPost{
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Text:      text,
	}

	if len(media) > 0 {
		images := make([]*bsky.EmbedImages_Image, 0, len(media))
		for _, ref := range media {
			blob, err := c.uploadImage(ctx, ref.String())
			if err != nil {
				return "", err
			}
			images = append(images, &bsky.EmbedImages_Image{Image: blob})
		}
		post.Embed = &bsky.FeedPost_Embed{
			EmbedImages: &bsky.EmbedImages{Images: images},
		}
	}

	res, err := atproto.RepoCreateRecord(ctx, c.client, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       c.did,
		Record: &util.LexiconTypeDecoder{
			Val: post,
		},
	})
	if err != nil {
		return "", mapError(err, "create record")
	}
	return res.Uri, nil
}

func (c *Client) uploadImage(ctx context.Context, path string) (*util.LexBlob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, syndicate.ValidationError{Provider: providerName, Reason: fmt.Sprintf("image %q not found", path)}
		}
		return nil, fmt.Errorf("read image: %w", err)
	}

	resp, err := atproto.RepoUploadBlob(ctx, c.client, bytes.NewReader(data))
	if err != nil {
		return nil, mapError(err, "upload blob")
	}
	if resp.Blob == nil {
		return nil, fmt.Errorf("upload blob: empty response")
	}
	return resp.Blob, nil
}

// refresh rotates the session with the stored refresh JWT.
func (c *Client) refresh(ctx context.Context, cred *syndicate.Credential) error {
	refreshClient := &xrpc.Client{
		Client: c.client.Client,
		Host:   c.client.Host,
		Auth: &xrpc.AuthInfo{
			AccessJwt: cred.RefreshToken,
			Did:       c.did,
		},
	}

	session, err := atproto.ServerRefreshSession(ctx, refreshClient)
	if err != nil {
		return fmt.Errorf("refresh session: %w", err)
	}

	c.client.Auth.AccessJwt = session.AccessJwt
	c.client.Auth.RefreshJwt = session.RefreshJwt
	cred.Update(session.AccessJwt, session.RefreshJwt, 0)
	return nil
}

// mapError converts an expired-token XRPC error into an AuthError so the
// guard can refresh the session.
func mapError(err error, op string) error {
	var xrpcErr *xrpc.Error
	if errors.As(err, &xrpcErr) && xrpcErr.StatusCode == http.StatusUnauthorized {
		return syndicate.AuthError{Provider: providerName, StatusCode: xrpcErr.StatusCode, Reason: xrpcErr.Error()}
	}
	return fmt.Errorf("%s: %w", op, err)
}
