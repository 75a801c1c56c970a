// Package gateway is a thin client over the external card-payment provider.
// The rest of the core depends only on the Client interface.
package gateway

import (
	"context"
)

type AuthorizationParams struct {
	AmountCents int64
	Currency    string
	Description string
	// Metadata rides along with the authorization and comes back on the
	// webhook. Each value is capped by the provider at 500 bytes.
	Metadata map[string]string
}

type Authorization struct {
	Reference    string
	ClientSecret string
	Status       string
	AmountCents  int64
	Currency     string
	Metadata     map[string]string
}

type RefundParams struct {
	PaymentRef  string
	AmountCents int64
	Reason      string
}

type Refund struct {
	Reference   string
	Status      string
	AmountCents int64
}

type Client interface {
	CreateAuthorization(ctx context.Context, params AuthorizationParams) (*Authorization, error)
	GetAuthorization(ctx context.Context, reference string) (*Authorization, error)
	CreateRefund(ctx context.Context, params RefundParams) (*Refund, error)
}
