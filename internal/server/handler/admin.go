package handler

import (
	"context"
	"log/slog"
	"net/http"

	s3blob "github.com/allocatorhq/compactd/internal/blob/s3"
	"github.com/allocatorhq/compactd/internal/indexer"
)

// archiveReader is the narrow interface AdminHandler needs from
// *s3blob.Reader.
type archiveReader interface {
	List(ctx context.Context, prefix string) ([]s3blob.BlobInfo, error)
}

// AdminHandler serves administrative operations: supported-chains refresh
// and archive-export visibility.
type AdminHandler struct {
	chains  *indexer.ChainCache
	archive archiveReader
	logger  *slog.Logger
}

// NewAdminHandler returns an AdminHandler. archive may be nil when archival
// storage (S3) is not configured, in which case ListArchives reports an
// empty list.
func NewAdminHandler(chains *indexer.ChainCache, archive archiveReader, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{chains: chains, archive: archive, logger: logHandler(logger, "admin")}
}

type chainDTO struct {
	ChainID               string `json:"chainId"`
	AllocatorID           string `json:"allocatorId"`
	FinalizationLagBlocks int    `json:"finalizationLagBlocks"`
}

// RefreshChains handles POST /admin/refresh-chains: re-fetches the
// supported-chains list from the indexer and atomically replaces the
// cache (see SPEC_FULL.md §5 on the cache's refresh policy).
func (h *AdminHandler) RefreshChains(w http.ResponseWriter, r *http.Request) {
	chains, err := h.chains.Refresh(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]chainDTO, len(chains))
	for i, c := range chains {
		out[i] = chainDTO{
			ChainID:               c.ChainID.String(),
			AllocatorID:           c.AllocatorID.String(),
			FinalizationLagBlocks: c.FinalizationLagBlocks,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chains": out})
}

type archiveObjectDTO struct {
	Path         string `json:"path"`
	Size         int64  `json:"size"`
	LastModified string `json:"lastModified"`
}

// ListArchives handles GET /admin/archives: lists the JSONL export files
// written by the archiver under the "archive/compacts/" prefix. Returns an
// empty list (never an error) when archival storage is not configured.
func (h *AdminHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeJSON(w, http.StatusOK, map[string]any{"archives": []archiveObjectDTO{}})
		return
	}

	objs, err := h.archive.List(r.Context(), "archive/compacts/")
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]archiveObjectDTO, len(objs))
	for i, o := range objs {
		out[i] = archiveObjectDTO{
			Path:         o.Path,
			Size:         o.Size,
			LastModified: o.LastModified.Format("2006-01-02T15:04:05Z07:00"),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": out})
}
