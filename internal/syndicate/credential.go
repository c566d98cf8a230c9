package syndicate

import "time"

// Credential holds the live tokens for one provider instance. Each
// provider owns its credential exclusively; the only mutation path is
// Update, invoked by the refresh guard mid-request.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// HasAccess reports whether an access token is present.
func (c *Credential) HasAccess() bool {
	return c != nil && c.AccessToken != ""
}

// Refreshable reports whether a refresh token is available.
func (c *Credential) Refreshable() bool {
	return c != nil && c.RefreshToken != ""
}

// Update replaces the stored tokens after a successful refresh. An empty
// refresh token keeps the previous one, since several platforms omit it
// from refresh responses.
func (c *Credential) Update(accessToken, refreshToken string, expiresIn int64) {
	c.AccessToken = accessToken
	if refreshToken != "" {
		c.RefreshToken = refreshToken
	}
	if expiresIn > 0 {
		c.ExpiresAt = time.Now().Add(time.Duration(expiresIn) * time.Second)
	}
}
