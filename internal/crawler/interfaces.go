package crawler

import (
	"context"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata. Non-2xx statuses
// are returned as responses, not errors; only transport failures error.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Limiter throttles outbound requests; Wait blocks until a request to url may
// be sent.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// RecordBackend reads and writes the serialized record document. Load returns
// ErrRecordNotFound when no prior document exists. Save must replace the
// document atomically: readers observe either the old or the new bytes.
type RecordBackend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	URI() string
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
