package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/allocatorhq/compactd/internal/domain"
)

// CompactArchiveStore provides read access to retired compacts for archival
// purposes. It is the narrow slice of domain.CompactStore the archiver
// actually calls.
type CompactArchiveStore interface {
	// ListRetiredBefore returns compacts that expired before cutoff.
	ListRetiredBefore(ctx context.Context, cutoff time.Time, opts domain.ListOpts) ([]domain.Compact, error)
}

// BlobWriter uploads archive payloads to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// ArchiveImpl implements periodic export of retired compacts by querying the
// compact store for expired rows, serializing them to JSONL, and uploading
// the result to S3.
//
// Deletion of the archived rows from the primary store is intentionally NOT
// performed here; the rows remain in Postgres for audit (SPEC_FULL.md §3),
// and this export exists purely as a secondary, queryable copy.
type ArchiveImpl struct {
	writer   BlobWriter
	compacts CompactArchiveStore
	audit    domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer BlobWriter, compacts CompactArchiveStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{writer: writer, compacts: compacts, audit: audit}
}

// ArchiveCompacts queries all compacts that expired before the cutoff,
// serializes them to JSONL, and uploads the file to
// archive/compacts/YYYY-MM.jsonl. The export is recorded in the audit log
// and the count of archived rows is returned. A zero cutoff match (no
// retired compacts) is a no-op.
func (a *ArchiveImpl) ArchiveCompacts(ctx context.Context, before time.Time) (int64, error) {
	var (
		compacts []domain.Compact
		offset   int
	)
	const pageSize = 1000
	for {
		page, err := a.compacts.ListRetiredBefore(ctx, before, domain.ListOpts{Limit: pageSize, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive compacts query: %w", err)
		}
		compacts = append(compacts, page...)
		if len(page) < pageSize {
			break
		}
		offset += pageSize
	}
	if len(compacts) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(compacts)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive compacts marshal: %w", err)
	}

	path := archivePath("compacts", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive compacts upload: %w", err)
	}

	count := int64(len(compacts))

	if err := a.audit.Log(ctx, "archive.compacts", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive compacts audit log: %w", err)
	}

	return count, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/compacts/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
