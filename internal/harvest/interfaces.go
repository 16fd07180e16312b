package harvest

import (
	"context"
	"io"
	"time"
)

// Searcher turns a keyword into a set of locations (repository names or URLs).
type Searcher interface {
	Name() string
	Search(ctx context.Context, keyword string) ([]string, error)
}

// RepoFetcher retrieves the candidate file contents of a code repository.
type RepoFetcher interface {
	FetchFiles(ctx context.Context, repo string) ([]string, error)
}

// URLFetcher retrieves the body of a URL as text.
type URLFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Extractor turns arbitrary text into candidate links. It must not panic on
// malformed input.
type Extractor interface {
	Parse(text string) []string
}

// Validator decides liveness. Internal failures resolve to false.
type Validator interface {
	IsAlive(ctx context.Context, link string) bool
}

// NodeReader lists persisted nodes newest first. limit <= 0 means no cap.
type NodeReader interface {
	ListNodes(ctx context.Context, limit int) ([]ProxyNode, error)
}

// NodeStore is the transactional store behind the persistence stage.
type NodeStore interface {
	NodeReader
	Begin(ctx context.Context) (NodeTx, error)
	Close()
}

// NodeTx stages inserts for one batch.
type NodeTx interface {
	Exists(ctx context.Context, uniqueHash string) (bool, error)
	// Insert stores the node and fills in ID when the store assigns one.
	Insert(ctx context.Context, node *ProxyNode) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes the identity digest of a link.
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

// Queue provides enqueue/dequeue semantics for harvest tasks.
type Queue interface {
	Enqueue(ctx context.Context, task Task) error
	Dequeue(ctx context.Context) (Task, error)
	Close()
}
