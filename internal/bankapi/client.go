// Package bankapi is the client for the bank's REST data services: accounts,
// beneficiaries, cards, loans, transfers, the customer profile and analytics.
package bankapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Veraticus/banktalk/internal/common"
	"github.com/Veraticus/banktalk/internal/model"
	"github.com/Veraticus/banktalk/internal/service"
)

const (
	serviceName  = "bank data service"
	maxBodyBytes = 4 << 20
)

// Config holds configuration for the data-service client.
type Config struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	Now        func() time.Time
	BaseURL    string
	Token      string
	Timeout    time.Duration
	Retry      common.RetryOptions
}

// Client implements service.Bank over HTTP.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
	baseURL    string
	token      string
	retry      common.RetryOptions
}

var _ service.Bank = (*Client)(nil)

// New creates a client for the service at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("%w: data service base url is required", common.ErrMissingConfig)
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("%w: data service base url: %w", common.ErrInvalidConfig, err)
	}

	c := &Client{
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
		now:        cfg.Now,
		baseURL:    base,
		token:      cfg.Token,
		retry:      cfg.Retry,
	}
	if c.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.retry.MaxAttempts == 0 {
		c.retry = common.DefaultRetryOptions()
	}
	return c, nil
}

// GetCustomer returns the customer's profile and unmasked accounts. The
// customer360 view masks account numbers, so accounts come from the account
// listing instead.
func (c *Client) GetCustomer(ctx context.Context, userID string) (*model.Customer, error) {
	var body struct {
		Data struct {
			Profile wireProfile `json:"profile"`
		} `json:"data"`
		Profile *wireProfile `json:"profile"`
	}
	if err := c.getJSON(ctx, "/api/customer360/"+url.PathEscape(userID), nil, &body); err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, fmt.Errorf("%w: customer %s: %w", common.ErrNotFound, userID, err)
		}
		return nil, err
	}

	profile := body.Data.Profile
	if body.Profile != nil {
		profile = *body.Profile
	}
	customer := &model.Customer{Profile: profile.model()}
	if customer.Profile.UserID == "" {
		customer.Profile.UserID = userID
	}

	accounts, err := c.ListAccounts(ctx, userID, service.AccountFilter{})
	if err != nil {
		return nil, err
	}
	customer.Accounts = accounts
	return customer, nil
}

// ListAccounts returns the user's accounts matching filter. The service
// reports "no accounts" as a client error; that is an empty list here.
func (c *Client) ListAccounts(ctx context.Context, userID string, filter service.AccountFilter) ([]model.Account, error) {
	q := url.Values{}
	if filter.AccountNumber != "" {
		q.Set("accountNumber", filter.AccountNumber)
	}
	if filter.AccountType != "" {
		q.Set("accountType", filter.AccountType)
	}
	if filter.Status != "" {
		q.Set("accountStatus", filter.Status)
	}

	raw, err := c.getRaw(ctx, "/api/accounts/user/"+url.PathEscape(userID), q)
	if isEmptyResult(err) {
		return []model.Account{}, nil
	}
	if err != nil {
		return nil, err
	}
	wire, err := decodeList[wireAccount](raw, "accounts")
	if err != nil {
		return nil, decodeError("accounts", err)
	}
	out := make([]model.Account, len(wire))
	for i, w := range wire {
		out[i] = w.model()
	}
	return out, nil
}

// SearchBeneficiaries returns the beneficiaries matching term. The service
// returns every beneficiary when nothing matches.
func (c *Client) SearchBeneficiaries(ctx context.Context, userID, term string) ([]model.Beneficiary, error) {
	q := url.Values{"userId": {userID}}
	if term = strings.TrimSpace(term); term != "" {
		q.Set("searchValue", term)
	}

	raw, err := c.getRaw(ctx, "/api/beneficiaries", q)
	if err != nil {
		return nil, err
	}
	wire, err := decodeList[wireBeneficiary](raw, "beneficiaries")
	if err != nil {
		return nil, decodeError("beneficiaries", err)
	}
	out := make([]model.Beneficiary, len(wire))
	for i, w := range wire {
		out[i] = w.model()
	}
	return out, nil
}

// ListCards returns the user's cards.
func (c *Client) ListCards(ctx context.Context, userID string) ([]model.Card, error) {
	raw, err := c.getRaw(ctx, "/api/cards/user/"+url.PathEscape(userID), nil)
	if isEmptyResult(err) {
		return []model.Card{}, nil
	}
	if err != nil {
		return nil, err
	}
	wire, err := decodeList[wireCard](raw, "cards")
	if err != nil {
		return nil, decodeError("cards", err)
	}
	out := make([]model.Card, len(wire))
	for i, w := range wire {
		out[i] = w.model()
	}
	return out, nil
}

// ListLoans returns the user's loans.
func (c *Client) ListLoans(ctx context.Context, userID string) ([]model.Loan, error) {
	raw, err := c.getRaw(ctx, "/api/loans/user/"+url.PathEscape(userID), nil)
	if isEmptyResult(err) {
		return []model.Loan{}, nil
	}
	if err != nil {
		return nil, err
	}
	wire, err := decodeList[wireLoan](raw, "loans")
	if err != nil {
		return nil, decodeError("loans", err)
	}
	out := make([]model.Loan, len(wire))
	for i, w := range wire {
		out[i] = w.model()
	}
	return out, nil
}

// ListTransfers returns the transfers on one of the user's accounts.
func (c *Client) ListTransfers(ctx context.Context, userID, accountID string) ([]model.TransferRecord, error) {
	raw, err := c.getRaw(ctx, "/api/transfers/"+url.PathEscape(userID)+"/"+url.PathEscape(accountID), nil)
	if isEmptyResult(err) {
		return []model.TransferRecord{}, nil
	}
	if err != nil {
		return nil, err
	}
	wire, err := decodeList[wireTransfer](raw, "transfers")
	if err != nil {
		return nil, decodeError("transfers", err)
	}
	out := make([]model.TransferRecord, len(wire))
	for i, w := range wire {
		out[i] = w.model()
	}
	return out, nil
}

// SubmitTransfer posts the transfer to the endpoint for its kind. Submissions
// are not retried; the idempotency key lets the service drop a duplicate if
// the caller resubmits.
func (c *Client) SubmitTransfer(ctx context.Context, req model.TransferRequest) (*model.Receipt, error) {
	kind := req.Kind
	if kind == "" {
		kind = model.TransferImmediate
	}

	payload, err := json.Marshal(newTransferBody(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal transfer: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/transfers/"+string(kind), nil, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	raw, err := c.do(httpReq)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError && apiErr.Message != "" {
			return nil, common.NewUserError(apiErr.Message, fmt.Errorf("%w: %w", common.ErrTransferRejected, err))
		}
		return nil, err
	}

	var body struct {
		Transfer *wireTransfer `json:"transfer"`
		Data     *wireTransfer `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, decodeError("transfer receipt", err)
	}
	w := body.Transfer
	if w == nil {
		w = body.Data
	}
	if w == nil {
		return nil, decodeError("transfer receipt", errors.New("missing transfer"))
	}

	receipt := w.receipt(c.now())
	if receipt.Reference == "" {
		receipt.Reference = req.Reference
	}
	if receipt.Amount.IsZero() {
		receipt.Amount = req.Amount
	}
	c.logger.Info("Transfer submitted",
		"kind", kind,
		"transfer_id", receipt.TransferID,
		"status", receipt.Status)
	return &receipt, nil
}

// FetchAnalytics posts the classification's analytics hints and returns the
// chart data unchanged.
func (c *Client) FetchAnalytics(ctx context.Context, req model.AnalyticsRequest) (model.AnalyticsPayload, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal analytics request: %w", err)
	}

	var raw []byte
	err = common.WithRetry(ctx, func() error {
		httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/analytics/data", nil, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		raw, err = c.do(httpReq)
		return err
	}, c.retry)
	if err != nil {
		return nil, err
	}

	var out model.AnalyticsPayload
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, decodeError("analytics", err)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	raw, err := c.getRaw(ctx, path, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return decodeError(path, err)
	}
	return nil
}

// getRaw performs a GET with retry.
func (c *Client) getRaw(ctx context.Context, path string, q url.Values) ([]byte, error) {
	var raw []byte
	err := common.WithRetry(ctx, func() error {
		req, err := c.newRequest(ctx, http.MethodGet, path, q, nil)
		if err != nil {
			return err
		}
		raw, err = c.do(req)
		return err
	}, c.retry)
	return raw, err
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body io.Reader) (*http.Request, error) {
	target := c.baseURL + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ctxErr)
		}
		return nil, fmt.Errorf("%s %s: %w: %w", req.Method, req.URL.Path, common.ErrServiceUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	c.logger.Debug("Data service call",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiError(resp.StatusCode, raw)
	}
	return raw, nil
}

// apiError reads {"error"} or {"message"} bodies.
func apiError(status int, raw []byte) *common.APIError {
	apiErr := &common.APIError{Service: serviceName, Status: status}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Error
		if apiErr.Message == "" {
			apiErr.Message = body.Message
		}
	}
	return apiErr
}

func isEmptyResult(err error) bool {
	var apiErr *common.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return apiErr.Status == http.StatusNotFound ||
		(apiErr.Status == http.StatusBadRequest && strings.HasPrefix(msg, "no ") && strings.Contains(msg, "found"))
}

func decodeError(what string, err error) error {
	return fmt.Errorf("failed to decode %s from %s: %w", what, serviceName, err)
}
