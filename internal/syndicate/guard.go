package syndicate

import (
	"context"

	"github.com/blacktop/syndicate/internal/logutil"
)

// RefreshFunc exchanges the credential's refresh token for fresh tokens
// and stores them via cred.Update. Implementations are provider-specific.
type RefreshFunc func(ctx context.Context, cred *Credential) error

// Guarded runs op once. If op fails with an authorization error and the
// credential carries a refresh token, it performs exactly one refresh and
// retries op exactly once. When the refresh or the retry fails, the
// original authorization failure is surfaced. Non-authorization failures
// propagate immediately.
func Guarded(ctx context.Context, cred *Credential, refresh RefreshFunc, op func(ctx context.Context) error) error {
	err := op(ctx)
	if err == nil || !IsAuth(err) {
		return err
	}
	if refresh == nil || !cred.Refreshable() {
		return err
	}

	logutil.Debugf("authorization failure, refreshing token: %v", err)
	if refreshErr := refresh(ctx, cred); refreshErr != nil {
		logutil.Debugf("token refresh failed: %v", refreshErr)
		return err
	}

	if retryErr := op(ctx); retryErr != nil {
		logutil.Debugf("retry after refresh failed: %v", retryErr)
		return err
	}
	return nil
}
