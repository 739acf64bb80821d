// Package indexer provides a read-only client over the external subgraph
// indexer that tracks resource-lock balances, pending withdrawals, settled
// claims, and on-chain compact registrations.
package indexer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/allocatorhq/compactd/internal/domain"
)

// defaultTimeout is the client-side timeout applied to every call, per
// SPEC_FULL.md §5.
const defaultTimeout = 5 * time.Second

// Client is a GraphQL client for the protocol's resource-lock subgraph.
type Client struct {
	graphqlURL string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new indexer client bound to graphqlURL.
func NewClient(graphqlURL, apiKey string) *Client {
	return &Client{
		graphqlURL: graphqlURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// graphqlRequest is the standard GraphQL request envelope.
type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// graphqlResponse is the standard GraphQL response envelope.
type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ResourceLock is the indexer's view of a single lock's custody state.
type ResourceLock struct {
	WithdrawalStatus int
	Balance          *domain.BigInt
}

// AccountDelta is one scheduled, signed balance change against a lock.
type AccountDelta struct {
	Delta *domain.BigInt // signed: negative for scheduled outflows
}

// CompactDetails is the bundle returned by getCompactDetails.
type CompactDetails struct {
	ResourceLock  *ResourceLock // nil if the lock does not exist
	AccountDeltas []AccountDelta
	SettledClaims []string // claim hashes reported settled for this account
}

// RegisteredCompact is the optional on-chain registration record returned
// by getRegisteredCompact, used for the sponsor-authorization fallback.
type RegisteredCompact struct {
	Expires  time.Time
	Sponsor  string
	TypeHash string
	Claim    *string
}

// GetCompactDetails fetches resource-lock balance, pending deltas, and
// settled claims for a (allocator, sponsor, lockId, chainId) tuple.
func (c *Client) GetCompactDetails(ctx context.Context, allocator, sponsor string, lockID *domain.BigInt, chainID *domain.BigInt) (*CompactDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		query CompactDetails($allocator: String!, $sponsor: String!, $lockId: String!, $chainId: BigInt!) {
			resourceLock(allocator: $allocator, sponsor: $sponsor, lockId: $lockId, chainId: $chainId) {
				withdrawalStatus
				balance
			}
			accountDeltas(allocator: $allocator, sponsor: $sponsor, lockId: $lockId, chainId: $chainId) {
				delta
			}
			claims(allocator: $allocator, sponsor: $sponsor, chainId: $chainId) {
				claimHash
			}
		}
	`
	variables := map[string]any{
		"allocator": allocator,
		"sponsor":   sponsor,
		"lockId":    lockID.String(),
		"chainId":   chainID.String(),
	}

	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return nil, &domain.IndexerErr{Op: "GetCompactDetails", Err: err}
	}

	var result struct {
		ResourceLock *struct {
			WithdrawalStatus int    `json:"withdrawalStatus"`
			Balance          string `json:"balance"`
		} `json:"resourceLock"`
		AccountDeltas []struct {
			Delta string `json:"delta"`
		} `json:"accountDeltas"`
		Claims []struct {
			ClaimHash string `json:"claimHash"`
		} `json:"claims"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, &domain.IndexerErr{Op: "GetCompactDetails", Err: fmt.Errorf("decode: %w", err)}
	}

	details := &CompactDetails{}
	if result.ResourceLock != nil {
		balance, err := domain.ParseBigInt(result.ResourceLock.Balance)
		if err != nil {
			return nil, &domain.IndexerErr{Op: "GetCompactDetails", Err: fmt.Errorf("parse balance: %w", err)}
		}
		details.ResourceLock = &ResourceLock{
			WithdrawalStatus: result.ResourceLock.WithdrawalStatus,
			Balance:          balance,
		}
	}
	for _, d := range result.AccountDeltas {
		delta, err := parseSignedBigInt(d.Delta)
		if err != nil {
			return nil, &domain.IndexerErr{Op: "GetCompactDetails", Err: fmt.Errorf("parse delta: %w", err)}
		}
		details.AccountDeltas = append(details.AccountDeltas, AccountDelta{Delta: delta})
	}
	for _, cl := range result.Claims {
		details.SettledClaims = append(details.SettledClaims, cl.ClaimHash)
	}
	return details, nil
}

// ResourceLockRef is one lock a sponsor has custody under, as returned by
// getAllResourceLocks.
type ResourceLockRef struct {
	ChainID          *domain.BigInt
	LockID           *domain.BigInt
	AllocatorAddress string
}

// GetAllResourceLocks lists every resource lock a sponsor holds, across all
// chains and allocators.
func (c *Client) GetAllResourceLocks(ctx context.Context, sponsor string) ([]ResourceLockRef, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		query ResourceLocks($sponsor: String!) {
			resourceLocks(sponsor: $sponsor) {
				chainId
				lockId
				allocatorAddress
			}
		}
	`
	respData, err := c.doQuery(ctx, query, map[string]any{"sponsor": sponsor})
	if err != nil {
		return nil, &domain.IndexerErr{Op: "GetAllResourceLocks", Err: err}
	}

	var result struct {
		ResourceLocks []struct {
			ChainID          string `json:"chainId"`
			LockID           string `json:"lockId"`
			AllocatorAddress string `json:"allocatorAddress"`
		} `json:"resourceLocks"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, &domain.IndexerErr{Op: "GetAllResourceLocks", Err: fmt.Errorf("decode: %w", err)}
	}

	out := make([]ResourceLockRef, 0, len(result.ResourceLocks))
	for _, rl := range result.ResourceLocks {
		chainID, err := domain.ParseBigInt(rl.ChainID)
		if err != nil {
			return nil, &domain.IndexerErr{Op: "GetAllResourceLocks", Err: err}
		}
		lockID, err := domain.ParseBigInt(rl.LockID)
		if err != nil {
			return nil, &domain.IndexerErr{Op: "GetAllResourceLocks", Err: err}
		}
		out = append(out, ResourceLockRef{ChainID: chainID, LockID: lockID, AllocatorAddress: rl.AllocatorAddress})
	}
	return out, nil
}

// GetSupportedChains fetches the allocator's supported chains and their
// allocatorIds.
func (c *Client) GetSupportedChains(ctx context.Context, allocator string) ([]domain.ChainConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		query SupportedChains($allocator: String!) {
			supportedChains(allocator: $allocator) {
				chainId
				allocatorId
				finalizationLagBlocks
			}
		}
	`
	respData, err := c.doQuery(ctx, query, map[string]any{"allocator": allocator})
	if err != nil {
		return nil, &domain.IndexerErr{Op: "GetSupportedChains", Err: err}
	}

	var result struct {
		SupportedChains []struct {
			ChainID               string `json:"chainId"`
			AllocatorID           string `json:"allocatorId"`
			FinalizationLagBlocks int    `json:"finalizationLagBlocks"`
		} `json:"supportedChains"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, &domain.IndexerErr{Op: "GetSupportedChains", Err: fmt.Errorf("decode: %w", err)}
	}

	out := make([]domain.ChainConfig, 0, len(result.SupportedChains))
	for _, sc := range result.SupportedChains {
		chainID, err := domain.ParseBigInt(sc.ChainID)
		if err != nil {
			return nil, &domain.IndexerErr{Op: "GetSupportedChains", Err: err}
		}
		allocatorID, err := domain.ParseBigInt(sc.AllocatorID)
		if err != nil {
			return nil, &domain.IndexerErr{Op: "GetSupportedChains", Err: err}
		}
		out = append(out, domain.ChainConfig{
			ChainID:               chainID,
			AllocatorID:           allocatorID,
			FinalizationLagBlocks: sc.FinalizationLagBlocks,
		})
	}
	return out, nil
}

// GetRegisteredCompact looks up an on-chain compact registration, used for
// the sponsor-authorization fallback described in SPEC_FULL.md §4.8.
func (c *Client) GetRegisteredCompact(ctx context.Context, allocator, sponsor, claimHash string, chainID *domain.BigInt) (*RegisteredCompact, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		query RegisteredCompact($allocator: String!, $sponsor: String!, $claimHash: String!, $chainId: BigInt!) {
			registeredCompact(allocator: $allocator, sponsor: $sponsor, claimHash: $claimHash, chainId: $chainId) {
				expires
				sponsor
				typehash
				claim
			}
		}
	`
	variables := map[string]any{
		"allocator": allocator,
		"sponsor":   sponsor,
		"claimHash": claimHash,
		"chainId":   chainID.String(),
	}
	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return nil, &domain.IndexerErr{Op: "GetRegisteredCompact", Err: err}
	}

	var result struct {
		RegisteredCompact *struct {
			Expires  string  `json:"expires"`
			Sponsor  string  `json:"sponsor"`
			TypeHash string  `json:"typehash"`
			Claim    *string `json:"claim"`
		} `json:"registeredCompact"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return nil, &domain.IndexerErr{Op: "GetRegisteredCompact", Err: fmt.Errorf("decode: %w", err)}
	}
	if result.RegisteredCompact == nil {
		return nil, nil
	}

	expiresInt, err := domain.ParseBigInt(result.RegisteredCompact.Expires)
	if err != nil {
		return nil, &domain.IndexerErr{Op: "GetRegisteredCompact", Err: err}
	}
	return &RegisteredCompact{
		Expires:  time.Unix(expiresInt.Int().Int64(), 0),
		Sponsor:  result.RegisteredCompact.Sponsor,
		TypeHash: result.RegisteredCompact.TypeHash,
		Claim:    result.RegisteredCompact.Claim,
	}, nil
}

// IsNonceConsumed reports whether the indexer has observed nonce consumed
// on-chain for sponsor, satisfying nonce.OnChainChecker.
func (c *Client) IsNonceConsumed(ctx context.Context, chainID *domain.BigInt, sponsor string, n *domain.BigInt) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		query NonceConsumed($sponsor: String!, $nonce: String!, $chainId: BigInt!) {
			nonceConsumption(sponsor: $sponsor, nonce: $nonce, chainId: $chainId) {
				consumed
			}
		}
	`
	variables := map[string]any{
		"sponsor": sponsor,
		"nonce":   n.String(),
		"chainId": chainID.String(),
	}
	respData, err := c.doQuery(ctx, query, variables)
	if err != nil {
		return false, err
	}

	var result struct {
		NonceConsumption *struct {
			Consumed bool `json:"consumed"`
		} `json:"nonceConsumption"`
	}
	if err := json.Unmarshal(respData, &result); err != nil {
		return false, fmt.Errorf("decode: %w", err)
	}
	return result.NonceConsumption != nil && result.NonceConsumption.Consumed, nil
}

// doQuery executes a GraphQL query and returns the raw "data" field.
func (c *Client) doQuery(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	reqBody := graphqlRequest{Query: query, Variables: variables}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal graphql request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.graphqlURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var gqlResp graphqlResponse
	if err := json.Unmarshal(body, &gqlResp); err != nil {
		return nil, fmt.Errorf("decode graphql response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %s", gqlResp.Errors[0].Message)
	}
	return gqlResp.Data, nil
}

// parseSignedBigInt parses a possibly-negative decimal integer, used for
// account deltas (scheduled outflows are negative).
func parseSignedBigInt(s string) (*domain.BigInt, error) {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	v, err := domain.ParseBigInt(s)
	if err != nil {
		return nil, err
	}
	if neg {
		return domain.NewBigInt(v.Int().Neg(v.Int())), nil
	}
	return v, nil
}
