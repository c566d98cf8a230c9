package syndicate

import (
	"context"
	"fmt"

	"github.com/blacktop/syndicate/internal/logutil"
)

// Dispatcher fans one publish request out to many providers and collects
// one PostResult per attempted target. It holds no mutable state beyond
// the registry and performs no retries of its own.
type Dispatcher struct {
	registry *Registry
}

// NewDispatcher wraps a registry of configured posters.
func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Adapter returns the poster registered under name, if any.
func (d *Dispatcher) Adapter(name string) (Poster, bool) {
	return d.registry.Get(name)
}

// Names lists the configured platform names in registration order.
func (d *Dispatcher) Names() []string {
	return d.registry.Names()
}

// Dispatch invokes each target provider sequentially and returns results
// in target order. With no explicit targets every configured provider is
// used. Target names not present in the registry are silently skipped.
// One provider's failure (including a panic) never affects another's.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, targets ...string) []PostResult {
	if len(targets) == 0 {
		targets = d.registry.Names()
	}

	results := make([]PostResult, 0, len(targets))
	for _, target := range targets {
		poster, ok := d.registry.Get(target)
		if !ok {
			logutil.Debugf("skipping unknown target %q", target)
			continue
		}
		results = append(results, d.post(ctx, poster, req))
	}
	return results
}

func (d *Dispatcher) post(ctx context.Context, poster Poster, req Request) (result PostResult) {
	result.Platform = poster.Name()
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.PostID = ""
			result.Err = fmt.Errorf("%s panicked: %v", result.Platform, r)
			logutil.Errorf("%v", result.Err)
		}
	}()

	logutil.Infof("posting to %s", result.Platform)
	postID, err := poster.Post(ctx, req)
	if err != nil {
		result.Err = err
		logutil.Errorf("%s: %v", result.Platform, err)
		return result
	}

	result.Success = true
	result.PostID = postID
	logutil.Infof("posted to %s (id %s)", result.Platform, postID)
	return result
}
