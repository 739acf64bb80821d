package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/allocatorhq/compactd/internal/allocation"
	"github.com/allocatorhq/compactd/internal/domain"
	"github.com/allocatorhq/compactd/internal/validator"
)

// compactRequest is the wire shape accepted by POST /compact and
// POST /compact/is-allocatable.
type compactRequest struct {
	ChainID          string        `json:"chainId"`
	SponsorSignature string        `json:"sponsorSignature"`
	Compact          compactBodyDTO `json:"compact"`
}

type compactBodyDTO struct {
	Sponsor           string        `json:"sponsor"`
	Nonce             string        `json:"nonce"`
	Expires           int64         `json:"expires"`
	WitnessTypeString *string       `json:"witnessTypeString,omitempty"`
	WitnessHash       *string       `json:"witnessHash,omitempty"`
	Elements          []elementDTO  `json:"elements"`
}

type elementDTO struct {
	Arbiter     string          `json:"arbiter"`
	ChainID     string          `json:"chainId"`
	MandateHash *string         `json:"mandateHash,omitempty"`
	Commitments []commitmentDTO `json:"commitments"`
}

type commitmentDTO struct {
	LockTag string `json:"lockTag"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

type compactResponse struct {
	Hash      string `json:"hash"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
}

// CompactHandler serves the compact submission, lookup, and
// allocatability-check endpoints.
type CompactHandler struct {
	engine    *allocation.Engine
	validator *validator.Validator
	store     domain.CompactStore
	logger    *slog.Logger
}

// NewCompactHandler returns a CompactHandler.
func NewCompactHandler(engine *allocation.Engine, v *validator.Validator, store domain.CompactStore, logger *slog.Logger) *CompactHandler {
	return &CompactHandler{engine: engine, validator: v, store: store, logger: logHandler(logger, "compact")}
}

// Submit handles POST /compact: validates, revalidates balance under the
// per-sponsor exclusive region, authorizes the sponsor, signs, and
// persists.
func (h *CompactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req compactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	submission, err := decodeSubmission(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var sponsorSig []byte
	if req.SponsorSignature != "" {
		sponsorSig = common.FromHex(req.SponsorSignature)
	}

	result, err := h.engine.Submit(r.Context(), allocation.Submission{
		ChainID:          submission.ChainID,
		Compact:          submission.Compact,
		Elements:         submission.Elements,
		SponsorSignature: sponsorSig,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, compactResponse{
		Hash:      result.ClaimHash,
		Signature: "0x" + common.Bytes2Hex(result.Signature),
		Nonce:     result.Nonce.Hex(),
	})
}

// ListBySponsor handles GET /compacts/{account}.
func (h *CompactHandler) ListBySponsor(w http.ResponseWriter, r *http.Request) {
	account := pathParam(r, "account")
	if !common.IsHexAddress(account) {
		writeError(w, http.StatusBadRequest, "account must be a 20-byte address")
		return
	}

	compacts, err := h.store.ListBySponsor(r.Context(), domain.NormalizeAddress(account), parseListOpts(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, compacts)
}

// GetByHash handles GET /compact/{chainId}/{claimHash}.
func (h *CompactHandler) GetByHash(w http.ResponseWriter, r *http.Request) {
	chainID, err := domain.ParseBigInt(pathParam(r, "chainId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "chainId must be an integer")
		return
	}
	claimHash := pathParam(r, "claimHash")

	compact, err := h.store.FindByChainAndClaimHash(r.Context(), chainID, claimHash)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, compact)
}

// isAllocatableResponse is the response shape for POST /compact/is-allocatable.
type isAllocatableResponse struct {
	IsAllocatable   bool    `json:"isAllocatable"`
	Reason          string  `json:"reason,omitempty"`
	ValidatedCompact *compactEcho `json:"validatedCompact,omitempty"`
}

type compactEcho struct {
	Sponsor string `json:"sponsor"`
	Nonce   string `json:"nonce"`
	Expires int64  `json:"expires"`
}

// IsAllocatable handles POST /compact/is-allocatable: runs structural
// validation only — it never acquires the sponsor lock, never revalidates
// balance under exclusion, and never signs or persists. It exists for
// clients to preflight a submission's shape before paying the real
// AllocationEngine round trip.
func (h *CompactHandler) IsAllocatable(w http.ResponseWriter, r *http.Request) {
	var req compactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	submission, err := decodeSubmission(req)
	if err != nil {
		writeJSON(w, http.StatusOK, isAllocatableResponse{IsAllocatable: false, Reason: err.Error()})
		return
	}

	if err := h.validator.Validate(validator.Submission{
		ChainID:  submission.ChainID,
		Compact:  submission.Compact,
		Elements: submission.Elements,
	}); err != nil {
		writeJSON(w, http.StatusOK, isAllocatableResponse{IsAllocatable: false, Reason: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, isAllocatableResponse{
		IsAllocatable: true,
		ValidatedCompact: &compactEcho{
			Sponsor: submission.Compact.Sponsor,
			Nonce:   submission.Compact.Nonce.Hex(),
			Expires: submission.Compact.Expires.Unix(),
		},
	})
}

// decodedSubmission bundles the chain ID, compact, and elements decoded
// from a wire request, ahead of variant classification.
type decodedSubmission struct {
	ChainID  *domain.BigInt
	Compact  domain.Compact
	Elements []domain.Element
}

// decodeSubmission parses a compactRequest into domain types and derives
// the compact's variant from its element/commitment shape.
func decodeSubmission(req compactRequest) (decodedSubmission, error) {
	chainID, err := domain.ParseBigInt(req.ChainID)
	if err != nil {
		return decodedSubmission{}, err
	}
	var nonce *domain.BigInt
	if req.Compact.Nonce != "" {
		nonce, err = domain.ParseBigInt(req.Compact.Nonce)
		if err != nil {
			return decodedSubmission{}, err
		}
	}

	elements := make([]domain.Element, len(req.Compact.Elements))
	for i, el := range req.Compact.Elements {
		elChainID, err := domain.ParseBigInt(el.ChainID)
		if err != nil {
			return decodedSubmission{}, err
		}
		commitments := make([]domain.Commitment, len(el.Commitments))
		for j, c := range el.Commitments {
			amount, err := domain.ParseBigInt(c.Amount)
			if err != nil {
				return decodedSubmission{}, err
			}
			commitments[j] = domain.Commitment{
				LockTag: c.LockTag,
				Token:   domain.NormalizeAddress(c.Token),
				Amount:  amount,
			}
		}
		elements[i] = domain.Element{
			ElementIndex: i,
			Arbiter:      domain.NormalizeAddress(el.Arbiter),
			ChainID:      elChainID,
			MandateHash:  el.MandateHash,
			Commitments:  commitments,
		}
	}

	variant := domain.VariantSingle
	switch {
	case len(elements) > 1:
		variant = domain.VariantMultichain
	case len(elements) == 1 && len(elements[0].Commitments) > 1:
		variant = domain.VariantBatch
	}

	compact := domain.Compact{
		Variant:           variant,
		ChainID:           chainID,
		Sponsor:           domain.NormalizeAddress(req.Compact.Sponsor),
		Nonce:             nonce,
		Expires:           time.Unix(req.Compact.Expires, 0).UTC(),
		WitnessTypeString: req.Compact.WitnessTypeString,
		WitnessHash:       req.Compact.WitnessHash,
	}

	return decodedSubmission{ChainID: chainID, Compact: compact, Elements: elements}, nil
}
