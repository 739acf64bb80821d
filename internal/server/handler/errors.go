package handler

import (
	"errors"
	"net/http"

	"github.com/allocatorhq/compactd/internal/domain"
)

// writeDomainError maps a core error to the HTTP status and body mandated by
// SPEC_FULL.md §7, via errors.Is/errors.As — never by type-switching on
// package-private concrete types from the HTTP layer.
func writeDomainError(w http.ResponseWriter, err error) {
	status, msg := statusFor(err)
	writeError(w, status, msg)
}

func statusFor(err error) (int, string) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest, err.Error()
	}

	var nonceErr *domain.NonceError
	if errors.As(err, &nonceErr) {
		if nonceErr.Kind == domain.NonceExhausted {
			return http.StatusInternalServerError, err.Error()
		}
		return http.StatusBadRequest, err.Error()
	}

	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return http.StatusForbidden, err.Error()
	}

	var balanceErr *domain.BalanceError
	if errors.As(err, &balanceErr) {
		return http.StatusBadRequest, err.Error()
	}

	var storeErr *domain.StoreError
	if errors.As(err, &storeErr) {
		return http.StatusConflict, err.Error()
	}

	var indexerErr *domain.IndexerErr
	if errors.As(err, &indexerErr) {
		return http.StatusBadGateway, err.Error()
	}

	if errors.Is(err, domain.ErrNotFound) {
		return http.StatusNotFound, "not found"
	}

	return http.StatusInternalServerError, "internal error"
}
