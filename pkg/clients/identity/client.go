package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/farmledger/internal/config"
	"github.com/mamadbah2/farmledger/internal/domain/errs"
)

// Provider exposes the identity/signing operations used by the dashboard.
type Provider interface {
	RequestAccounts(ctx context.Context) ([]string, error)
	GetSigner(ctx context.Context, address string) (Signer, error)
}

// Signer is the capability to submit ledger transactions on behalf of Address.
type Signer struct {
	Address      string
	SessionToken string
}

// Valid reports whether the signer can be used for submissions.
func (s Signer) Valid() bool {
	return s.Address != ""
}

// APIClient is a resty-backed implementation of Provider.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds a signer client. Account requests wait for user approval,
// so the timeout is generous.
func NewClient(cfg config.SignerConfig) *APIClient {
	restyClient := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.URL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(2 * time.Minute)

	if cfg.APIKey != "" {
		restyClient.SetHeader("X-API-Key", cfg.APIKey)
	}

	return &APIClient{httpClient: restyClient}
}

type accountsResponse struct {
	Accounts []string `json:"accounts"`
}

type sessionResponse struct {
	Address string `json:"address"`
	Token   string `json:"token"`
}

// RequestAccounts asks the provider for the accounts the user approved.
// An empty list means the user refused.
func (c *APIClient) RequestAccounts(ctx context.Context) ([]string, error) {
	result := new(accountsResponse)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(result).
		Post("/accounts/request")
	if err != nil {
		return nil, fmt.Errorf("%w: request accounts: %v", errs.ErrIdentityUnavailable, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: request accounts: status=%d", errs.ErrIdentityUnavailable, resp.StatusCode())
	}
	if len(result.Accounts) == 0 {
		return nil, fmt.Errorf("%w: no accounts approved", errs.ErrIdentityUnavailable)
	}
	return result.Accounts, nil
}

// GetSigner opens a signing session for address.
func (c *APIClient) GetSigner(ctx context.Context, address string) (Signer, error) {
	result := new(sessionResponse)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(result).
		Post("/accounts/" + url.PathEscape(address) + "/sessions")
	if err != nil {
		return Signer{}, fmt.Errorf("%w: open signer session: %v", errs.ErrIdentityUnavailable, err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return Signer{}, fmt.Errorf("%w: open signer session: status=%d", errs.ErrIdentityUnavailable, resp.StatusCode())
	}

	signer := Signer{Address: result.Address, SessionToken: result.Token}
	if signer.Address == "" {
		signer.Address = address
	}
	return signer, nil
}
