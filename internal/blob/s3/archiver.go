package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/hedgeworks/crossarb/internal/domain"
)

const (
	snapshotPrefix = "snapshots/ledger-"
	latestKey      = "snapshots/latest.json"

	// snapshotStamp orders snapshot keys lexicographically by capture time.
	snapshotStamp = "20060102T150405Z"

	// multipartThreshold switches trade archives to multipart upload.
	// Monthly JSONL files are usually far smaller; a busy month is not.
	multipartThreshold = 8 * 1024 * 1024

	contentTypeJSON  = "application/json"
	contentTypeJSONL = "application/x-ndjson"
)

// Archiver implements domain.LedgerArchiver over a blob reader and writer
// pair. It never deletes anything it did not write: only timestamped
// snapshot keys are subject to pruning.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
}

// NewArchiver creates an Archiver over the given writer and reader, usually
// NewWriter and NewReader on the same client.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
	}
}

// ArchiveSnapshot uploads the full ledger record twice: once under a
// timestamped key and once as the well-known latest key that RestoreLatest
// reads. It returns the timestamped path.
func (a *Archiver) ArchiveSnapshot(ctx context.Context, led *domain.Ledger, at time.Time) (string, error) {
	data, err := json.Marshal(led)
	if err != nil {
		return "", fmt.Errorf("s3blob: encode snapshot: %w", err)
	}

	path := snapshotPrefix + at.UTC().Format(snapshotStamp) + ".json"
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), contentTypeJSON); err != nil {
		return "", fmt.Errorf("s3blob: archive snapshot: %w", err)
	}

	if err := a.writer.Put(ctx, latestKey, bytes.NewReader(data), contentTypeJSON); err != nil {
		return path, fmt.Errorf("s3blob: update latest snapshot: %w", err)
	}
	return path, nil
}

// RestoreLatest downloads and decodes the latest snapshot. It returns
// domain.ErrNotFound when no snapshot has ever been archived.
func (a *Archiver) RestoreLatest(ctx context.Context) (*domain.Ledger, error) {
	body, err := a.reader.Get(ctx, latestKey)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read latest snapshot: %w", err)
	}

	var led domain.Ledger
	if err := json.Unmarshal(data, &led); err != nil {
		return nil, fmt.Errorf("s3blob: decode latest snapshot: %w", err)
	}
	return &led, nil
}

// ArchiveSettledTrades serializes the terminal trades among the given set to
// JSONL and uploads them under archive/trades/YYYY-MM.jsonl. Large months go
// through multipart upload. It returns the number of trades archived.
func (a *Archiver) ArchiveSettledTrades(ctx context.Context, trades []*domain.Trade, month time.Time) (int64, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	var count int64
	for _, t := range trades {
		if t == nil || !t.Status.Terminal() {
			continue
		}
		if err := enc.Encode(t); err != nil {
			return 0, fmt.Errorf("s3blob: encode trade %s: %w", t.ID, err)
		}
		count++
	}
	if count == 0 {
		return 0, nil
	}

	path := fmt.Sprintf("archive/trades/%s.jsonl", month.UTC().Format("2006-01"))

	if buf.Len() >= multipartThreshold {
		if err := a.writer.PutMultipart(ctx, path, &buf, minPartSize); err != nil {
			return 0, fmt.Errorf("s3blob: archive trades: %w", err)
		}
		return count, nil
	}

	if err := a.writer.Put(ctx, path, &buf, contentTypeJSONL); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades: %w", err)
	}
	return count, nil
}

// PruneSnapshots deletes all but the newest keep timestamped snapshots and
// returns the number deleted. The latest key is never touched.
func (a *Archiver) PruneSnapshots(ctx context.Context, keep int) (int64, error) {
	if keep < 1 {
		keep = 1
	}

	infos, err := a.reader.List(ctx, snapshotPrefix)
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune snapshots: %w", err)
	}
	if len(infos) <= keep {
		return 0, nil
	}

	// Keys embed the capture stamp, so path order is capture order.
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Path > infos[j].Path
	})

	var deleted int64
	for _, info := range infos[keep:] {
		if err := a.reader.Delete(ctx, info.Path); err != nil {
			return deleted, fmt.Errorf("s3blob: prune snapshot %s: %w", info.Path, err)
		}
		deleted++
	}
	return deleted, nil
}

// Compile-time interface check.
var _ domain.LedgerArchiver = (*Archiver)(nil)
