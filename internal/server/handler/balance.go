package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/allocatorhq/compactd/internal/balance"
	"github.com/allocatorhq/compactd/internal/domain"
	"github.com/allocatorhq/compactd/internal/indexer"
)

// balanceResponse is the wire shape for a single lock's balance state.
type balanceResponse struct {
	AllocatableBalance         string `json:"allocatableBalance"`
	AllocatedBalance           string `json:"allocatedBalance"`
	BalanceAvailableToAllocate string `json:"balanceAvailableToAllocate"`
	WithdrawalStatus           int    `json:"withdrawalStatus"`
}

// BalanceHandler serves balance lookups for a single lock or for every
// lock a sponsor holds under this allocator.
type BalanceHandler struct {
	engine           *balance.Engine
	indexerClient    *indexer.Client
	allocatorAddress string
	logger           *slog.Logger
}

// NewBalanceHandler returns a BalanceHandler.
func NewBalanceHandler(engine *balance.Engine, indexerClient *indexer.Client, allocatorAddress string, logger *slog.Logger) *BalanceHandler {
	return &BalanceHandler{
		engine:           engine,
		indexerClient:    indexerClient,
		allocatorAddress: allocatorAddress,
		logger:           logHandler(logger, "balance"),
	}
}

// GetOne handles GET /balance/{chainId}/{lockId}/{account}.
func (h *BalanceHandler) GetOne(w http.ResponseWriter, r *http.Request) {
	chainID, err := domain.ParseBigInt(pathParam(r, "chainId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "chainId must be an integer")
		return
	}
	lockID, err := domain.ParseBigInt(pathParam(r, "lockId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "lockId must be an integer")
		return
	}
	account := pathParam(r, "account")
	if !common.IsHexAddress(account) {
		writeError(w, http.StatusBadRequest, "account must be a 20-byte address")
		return
	}

	allocatorID := domain.AllocatorIDFromLockID(lockID)
	result, err := h.engine.Check(r.Context(), h.allocatorAddress, domain.NormalizeAddress(account), chainID, lockID, allocatorID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		AllocatableBalance:         result.Allocatable.String(),
		AllocatedBalance:           result.Outstanding.String(),
		BalanceAvailableToAllocate: result.Capacity().String(),
	})
}

// balancesResponse is the wire shape for GET /balances/{account}.
type balancesResponse struct {
	Balances []lockBalance `json:"balances"`
}

type lockBalance struct {
	ChainID                    string `json:"chainId"`
	LockID                     string `json:"lockId"`
	AllocatableBalance         string `json:"allocatableBalance"`
	AllocatedBalance           string `json:"allocatedBalance"`
	BalanceAvailableToAllocate string `json:"balanceAvailableToAllocate"`
}

// GetAll handles GET /balances/{account}: every resource lock the sponsor
// holds under this allocator's address, with its current balance state.
func (h *BalanceHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	account := pathParam(r, "account")
	if !common.IsHexAddress(account) {
		writeError(w, http.StatusBadRequest, "account must be a 20-byte address")
		return
	}
	sponsor := domain.NormalizeAddress(account)

	refs, err := h.indexerClient.GetAllResourceLocks(r.Context(), sponsor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	lookups := make([]balance.Lookup, 0, len(refs))
	for _, ref := range refs {
		if domain.NormalizeAddress(ref.AllocatorAddress) != domain.NormalizeAddress(h.allocatorAddress) {
			continue
		}
		lookups = append(lookups, balance.Lookup{
			ChainID:     ref.ChainID,
			LockID:      ref.LockID,
			AllocatorID: domain.AllocatorIDFromLockID(ref.LockID),
		})
	}

	results, err := h.engine.CheckAll(r.Context(), h.allocatorAddress, sponsor, lookups)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]lockBalance, len(results))
	for i, res := range results {
		out[i] = lockBalance{
			ChainID:                    res.ChainID.String(),
			LockID:                     res.LockID.Hex(),
			AllocatableBalance:         res.Allocatable.String(),
			AllocatedBalance:           res.Outstanding.String(),
			BalanceAvailableToAllocate: res.Capacity().String(),
		}
	}
	writeJSON(w, http.StatusOK, balancesResponse{Balances: out})
}
