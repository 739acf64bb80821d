package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/allocatorhq/compactd/internal/domain"
	"github.com/allocatorhq/compactd/internal/nonce"
)

// NonceHandler serves the suggested-nonce endpoint.
type NonceHandler struct {
	service *nonce.Service
	logger  *slog.Logger
}

// NewNonceHandler returns a NonceHandler.
func NewNonceHandler(service *nonce.Service, logger *slog.Logger) *NonceHandler {
	return &NonceHandler{service: service, logger: logHandler(logger, "nonce")}
}

// Suggest handles GET /suggested-nonce/{chainId}/{account}.
func (h *NonceHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	chainID, err := domain.ParseBigInt(pathParam(r, "chainId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "chainId must be an integer")
		return
	}
	account := pathParam(r, "account")
	if !common.IsHexAddress(account) {
		writeError(w, http.StatusBadRequest, "account must be a 20-byte address")
		return
	}

	suggested, err := h.service.Suggest(r.Context(), domain.NormalizeAddress(account), chainID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nonce": suggested.Hex()})
}
