package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}

// LedgerArchiver keeps off-site copies of the ledger: timestamped snapshots
// for disaster recovery and monthly JSONL archives of settled trades for
// offline analysis.
type LedgerArchiver interface {
	ArchiveSnapshot(ctx context.Context, led *Ledger, at time.Time) (string, error)
	RestoreLatest(ctx context.Context) (*Ledger, error)
	ArchiveSettledTrades(ctx context.Context, trades []*Trade, month time.Time) (int64, error)
	PruneSnapshots(ctx context.Context, keep int) (int64, error)
}
