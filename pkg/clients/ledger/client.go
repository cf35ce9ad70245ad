package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/mamadbah2/farmledger/internal/config"
	"github.com/mamadbah2/farmledger/internal/domain/errs"
)

// Transaction statuses reported by the gateway.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

// Client exposes the ledger gateway operations used by the dashboard.
type Client interface {
	GetFarmer(ctx context.Context, address string) (*Farmer, error)
	GetProduceCount(ctx context.Context, address string) (any, error)
	GetProduce(ctx context.Context, address string, index uint64) (*ProduceItem, error)
	GetAllSales(ctx context.Context) ([]Sale, error)
	SubmitTransaction(ctx context.Context, req SubmitRequest) (*Transaction, error)
	GetTransaction(ctx context.Context, hash string) (*Transaction, error)
}

// Farmer is the raw profile entry. Field values are whatever the gateway encoded.
type Farmer struct {
	Name         any `json:"name"`
	ContactInfo  any `json:"contactInfo"`
	Location     any `json:"location"`
	IsRegistered any `json:"isRegistered"`
}

// ProduceItem is the raw inventory entry.
type ProduceItem struct {
	Name        any `json:"name"`
	Category    any `json:"category"`
	Price       any `json:"price"`
	Quantity    any `json:"quantity"`
	HarvestDate any `json:"harvestDate"`
	ImageHash   any `json:"imageHash"`
	IsAvailable any `json:"isAvailable"`
}

// Sale is the raw sale entry.
type Sale struct {
	ProduceID  any `json:"produceId"`
	Quantity   any `json:"quantity"`
	BuyerName  any `json:"buyerName"`
	BuyerPhone any `json:"buyerPhone"`
	Price      any `json:"price"`
	Timestamp  any `json:"timestamp"`
}

// SubmitRequest carries a contract call to be signed and ordered by the gateway.
type SubmitRequest struct {
	From         string `json:"from"`
	SessionToken string `json:"-"`
	Method       string `json:"method"`
	Args         []any  `json:"args"`
}

// Transaction describes a submitted write.
type Transaction struct {
	Hash   string `json:"hash"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// APIClient is a resty-backed implementation of Client.
type APIClient struct {
	httpClient *resty.Client
}

// NewClient builds a ledger gateway client using the provided configuration values.
func NewClient(cfg config.LedgerConfig) *APIClient {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(cfg.GatewayURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(cfg.Timeout)

	if cfg.APIKey != "" {
		restyClient.SetHeader("X-API-Key", cfg.APIKey)
	}

	return &APIClient{httpClient: restyClient}
}

// apiError represents the gateway error payload.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (c *APIClient) GetFarmer(ctx context.Context, address string) (*Farmer, error) {
	out := new(Farmer)
	if err := c.get(ctx, "/farmers/"+url.PathEscape(address), out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *APIClient) GetProduceCount(ctx context.Context, address string) (any, error) {
	var out struct {
		Count any `json:"count"`
	}
	if err := c.get(ctx, "/farmers/"+url.PathEscape(address)+"/produce/count", &out); err != nil {
		return nil, err
	}
	return out.Count, nil
}

func (c *APIClient) GetProduce(ctx context.Context, address string, index uint64) (*ProduceItem, error) {
	out := new(ProduceItem)
	path := "/farmers/" + url.PathEscape(address) + "/produce/" + strconv.FormatUint(index, 10)
	if err := c.get(ctx, path, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *APIClient) GetAllSales(ctx context.Context) ([]Sale, error) {
	var out struct {
		Sales []Sale `json:"sales"`
	}
	if err := c.get(ctx, "/sales", &out); err != nil {
		return nil, err
	}
	return out.Sales, nil
}

func (c *APIClient) SubmitTransaction(ctx context.Context, req SubmitRequest) (*Transaction, error) {
	r := c.httpClient.R().SetContext(ctx).SetBody(req)
	if req.SessionToken != "" {
		r.SetAuthToken(req.SessionToken)
	}

	resp, err := r.Post("/transactions")
	if err != nil {
		return nil, fmt.Errorf("%w: submit %s: %v", errs.ErrLedgerUnavailable, req.Method, err)
	}
	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("submit %s: %w", req.Method, err)
	}

	out := new(Transaction)
	if err := decode(resp.Body(), out); err != nil {
		return nil, fmt.Errorf("submit %s: %w", req.Method, err)
	}
	if out.Hash == "" {
		return nil, fmt.Errorf("%w: submit %s: gateway returned no transaction hash", errs.ErrLedgerUnavailable, req.Method)
	}
	return out, nil
}

func (c *APIClient) GetTransaction(ctx context.Context, hash string) (*Transaction, error) {
	out := new(Transaction)
	if err := c.get(ctx, "/transactions/"+url.PathEscape(hash), out); err != nil {
		return nil, err
	}
	if out.Hash == "" {
		out.Hash = hash
	}
	return out, nil
}

func (c *APIClient) get(ctx context.Context, path string, out any) error {
	resp, err := c.httpClient.R().SetContext(ctx).Get(path)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %v", errs.ErrLedgerUnavailable, path, err)
	}
	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	if err := decode(resp.Body(), out); err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return nil
}

// checkStatus classifies gateway failures: 5xx as unavailable, 4xx as rejected.
func checkStatus(resp *resty.Response) error {
	code := resp.StatusCode()
	if code < http.StatusBadRequest {
		return nil
	}

	message := http.StatusText(code)
	var apiErr apiError
	if err := json.Unmarshal(resp.Body(), &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	if code >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status=%d, message=%s", errs.ErrLedgerUnavailable, code, message)
	}
	return fmt.Errorf("%w: status=%d, message=%s", errs.ErrLedgerRejected, code, message)
}

// decode keeps numbers as json.Number so 256-bit amounts survive intact.
func decode(body []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: decode gateway response: %v", errs.ErrLedgerUnavailable, err)
	}
	return nil
}
