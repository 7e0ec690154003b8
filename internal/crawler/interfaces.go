package crawler

import (
	"context"
	"errors"
	"time"
)

// ErrBrowserUnavailable reports that a browser session could not be started.
var ErrBrowserUnavailable = errors.New("browser unavailable")

// DocumentQuery matches CSS selectors against a parsed page. An invalid or
// empty selector matches nothing.
type DocumentQuery interface {
	MatchAll(selector string) []Element
}

// Element is one matched node. Text returns the raw text content including
// newlines; Attr reports whether the attribute exists.
type Element interface {
	DocumentQuery
	Text() string
	Attr(name string) (string, bool)
	Tag() string
}

// DocumentParser turns serialized HTML into a DocumentQuery.
type DocumentParser interface {
	Parse(html string) (DocumentQuery, error)
}

// BrowserLauncher starts one browser session per run. Implementations return
// an error wrapping ErrBrowserUnavailable when the runtime cannot start.
type BrowserLauncher interface {
	Launch(ctx context.Context) (BrowserSession, error)
}

// BrowserSession renders pages. It is owned by exactly one run.
type BrowserSession interface {
	FetchPage(ctx context.Context, url string) (string, error)
	Close() error
}

// ListingStore persists listings keyed by URL.
type ListingStore interface {
	List(ctx context.Context, filter ListingFilter) ([]JobListing, error)
	Upsert(ctx context.Context, listings []JobListing) (int, error)
	Delete(ctx context.Context, filter ListingFilter) (int, error)
}

// Persister hands a finished batch to durable storage and reports how many
// rows were stored.
type Persister interface {
	Persist(ctx context.Context, listings []JobListing) (int, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Emitter receives run events in production order. A returned error means
// the consumer is gone; producers may keep working.
type Emitter interface {
	Emit(ctx context.Context, evt Event) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, evt Event) error

// Emit calls f.
func (f EmitterFunc) Emit(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Hasher digests archived payloads.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
