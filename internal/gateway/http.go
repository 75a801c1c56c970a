package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const DefaultTimeout = 10 * time.Second

// HTTPClient talks to the provider's REST API with form-encoded requests and
// bearer auth. Every call carries a bounded timeout; the provider is a
// trusted black box reached over HTTPS.
type HTTPClient struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

func NewHTTPClient(baseURL, secretKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    &http.Client{Timeout: timeout},
	}
}

type apiAuthorization struct {
	ID           string            `json:"id"`
	ClientSecret string            `json:"client_secret"`
	Status       string            `json:"status"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Metadata     map[string]string `json:"metadata"`
}

type apiRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount int64  `json:"amount"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) CreateAuthorization(ctx context.Context, params AuthorizationParams) (*Authorization, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(params.AmountCents, 10))
	form.Set("currency", params.Currency)
	if params.Description != "" {
		form.Set("description", params.Description)
	}
	for k, v := range params.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var out apiAuthorization
	if err := c.do(ctx, http.MethodPost, "/v1/authorizations", form, &out); err != nil {
		return nil, err
	}
	return authFromAPI(&out), nil
}

func (c *HTTPClient) GetAuthorization(ctx context.Context, reference string) (*Authorization, error) {
	var out apiAuthorization
	if err := c.do(ctx, http.MethodGet, "/v1/authorizations/"+reference, nil, &out); err != nil {
		return nil, err
	}
	return authFromAPI(&out), nil
}

func (c *HTTPClient) CreateRefund(ctx context.Context, params RefundParams) (*Refund, error) {
	form := url.Values{}
	form.Set("payment", params.PaymentRef)
	form.Set("amount", strconv.FormatInt(params.AmountCents, 10))
	if params.Reason != "" {
		form.Set("reason", params.Reason)
	}

	var out apiRefund
	if err := c.do(ctx, http.MethodPost, "/v1/refunds", form, &out); err != nil {
		return nil, err
	}
	return &Refund{Reference: out.ID, Status: out.Status, AmountCents: out.Amount}, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "gateway %s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrapf(err, "gateway %s %s", method, path)
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return errors.Newf("gateway %s %s: %d %s: %s",
				method, path, resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
		}
		return errors.Newf("gateway %s %s: status %d", method, path, resp.StatusCode)
	}
	return json.Unmarshal(data, out)
}

func authFromAPI(a *apiAuthorization) *Authorization {
	return &Authorization{
		Reference:    a.ID,
		ClientSecret: a.ClientSecret,
		Status:       a.Status,
		AmountCents:  a.Amount,
		Currency:     a.Currency,
		Metadata:     a.Metadata,
	}
}
