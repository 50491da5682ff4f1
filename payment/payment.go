// Package payment integrates the storefront with payment providers and owns
// the order status transitions they trigger.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"biscuit-backend/models"

	"github.com/google/uuid"
)

// upstreamTimeout bounds every outbound provider call.
const upstreamTimeout = 10 * time.Second

// Service is implemented by each provider integration.
type Service interface {
	Name() string
	Initiate(ctx context.Context, order *models.Order, callbackURL string) (*InitiateResult, error)
	CheckStatus(ctx context.Context, order *models.Order) (*StatusResult, error)
	HandleCallback(ctx context.Context, payload Payload) (*CallbackResult, error)
}

type InitiateResult struct {
	Status               string `json:"status"`
	ProviderReference    string `json:"provider_reference,omitempty"`
	TransactionReference string `json:"transaction_reference,omitempty"`
	NotificationMethod   string `json:"notification_method,omitempty"`
	RedirectURL          string `json:"redirect_url,omitempty"`
}

// StatusResult carries the provider's own status word next to the
// canonical order status it maps to.
type StatusResult struct {
	Status      string             `json:"status"`
	OrderStatus models.OrderStatus `json:"order_status"`
	Message     string             `json:"message,omitempty"`
}

type CallbackResult struct {
	Status    string             `json:"status"`
	Message   string             `json:"message,omitempty"`
	OrderID   *uuid.UUID         `json:"order_id,omitempty"`
	NewStatus models.OrderStatus `json:"new_status,omitempty"`
}

const (
	CallbackSuccess = "success"
	CallbackError   = "error"
)

func callbackError(msg string) *CallbackResult {
	return &CallbackResult{Status: CallbackError, Message: msg}
}

func callbackSuccess(orderID uuid.UUID, status models.OrderStatus, msg string) *CallbackResult {
	return &CallbackResult{Status: CallbackSuccess, Message: msg, OrderID: &orderID, NewStatus: status}
}

// Payload is a flattened webhook body.
type Payload map[string]string

func (p Payload) Get(key string) string {
	return strings.TrimSpace(p[key])
}

// ValidationError reports a precondition that failed before any provider
// call was made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var (
	ErrUpstreamTimeout   = errors.New("payment provider did not respond in time")
	ErrUnknownReference  = errors.New("no order matches the transaction reference")
	ErrOrderNotFound     = errors.New("order not found")
	ErrUnsupportedMethod = errors.New("payment method not supported")
	ErrInvalidTransition = errors.New("invalid order status transition")
)

// UpstreamError is a provider failure: a non-2xx answer or a broken exchange.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.StatusCode, truncate(e.Body, 200))
	}
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsUpstream reports whether err came from a provider rather than from
// local validation or storage.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.Is(err, ErrUpstreamTimeout) || errors.As(err, &ue)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// NewTransactionReference returns ORDER-{order id}-{8 random hex}.
func NewTransactionReference(orderID uuid.UUID) string {
	return fmt.Sprintf("ORDER-%s-%s", orderID, randomHex8())
}

func randomHex8() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
