package syndicate

import "context"

// Request defines the publish payload shared across all providers.
// It is immutable once handed to the Dispatcher.
type Request struct {
	Text  string
	Media []MediaRef
	Link  string
}

// Poster abstracts a social network that can publish content.
// Post returns the platform-assigned id of the created post. Expected
// failure modes (missing credentials, unsupported content, upstream
// rejection) are reported through the error return; the Dispatcher
// converts them into PostResult values.
type Poster interface {
	Name() string
	Post(ctx context.Context, req Request) (string, error)
}

// StatsProvider is an optional capability for providers that expose
// read-only engagement data. Callers discover it with a type assertion.
type StatsProvider interface {
	Stats(ctx context.Context) (map[string]any, error)
}

// PostResult captures the outcome of one provider's publish attempt.
type PostResult struct {
	Platform string
	Success  bool
	PostID   string
	Err      error
}
