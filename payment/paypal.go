package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"biscuit-backend/config"
	"biscuit-backend/metrics"
	"biscuit-backend/models"

	"github.com/rs/zerolog"
)

const ProviderPaypal = "paypal"

// PaypalService is a redirect-based provider with no server-to-server API:
// the customer is sent to PayPal and the outcome arrives as an IPN post.
type PaypalService struct {
	cfg    config.PaypalConfig
	store  *StatusStore
	logger zerolog.Logger
}

func NewPaypalService(cfg config.PaypalConfig, store *StatusStore, logger zerolog.Logger) *PaypalService {
	return &PaypalService{
		cfg:    cfg,
		store:  store,
		logger: logger.With().Str("provider", ProviderPaypal).Logger(),
	}
}

func (s *PaypalService) Name() string { return ProviderPaypal }

func (s *PaypalService) Initiate(ctx context.Context, order *models.Order, callbackURL string) (*InitiateResult, error) {
	if order.Status.IsTerminal() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("order is already %s", order.Status)}
	}

	ref := order.Reference()
	if !strings.HasPrefix(ref, "paypal_") {
		ref = fmt.Sprintf("paypal_%s_%s", order.ID, randomHex8())
		if err := s.store.SetReference(ctx, order, ref); err != nil {
			return nil, err
		}
	}
	if order.TransactionID != ref {
		if err := s.store.SetTransactionID(ctx, order, ref); err != nil {
			return nil, err
		}
	}
	metrics.Add(ctx, metrics.Get().PaymentsInitiated, "provider", ProviderPaypal)

	return &InitiateResult{
		Status:               string(models.OrderStatusPending),
		ProviderReference:    ref,
		TransactionReference: ref,
		NotificationMethod:   "redirect",
		RedirectURL:          s.approvalURL(order, ref, callbackURL),
	}, nil
}

func (s *PaypalService) approvalURL(order *models.Order, ref, callbackURL string) string {
	if s.cfg.ApprovalURL == "" {
		return ""
	}
	q := url.Values{
		"cmd":           {"_xclick"},
		"business":      {s.cfg.ReceiverMail},
		"amount":        {order.TotalPrice.StringFixed(2)},
		"currency_code": {"MGA"},
		"item_name":     {"Order " + order.ID.String()},
		"invoice":       {ref},
		"custom":        {order.ID.String()},
		"notify_url":    {callbackURL},
	}
	return s.cfg.ApprovalURL + "?" + q.Encode()
}

// CheckStatus has nothing to ask upstream and reports the stored status.
func (s *PaypalService) CheckStatus(_ context.Context, order *models.Order) (*StatusResult, error) {
	res := &StatusResult{Status: string(order.Status), OrderStatus: order.Status}
	if order.Status == models.OrderStatusPending {
		res.Message = "awaiting PayPal notification"
	}
	return res, nil
}

// HandleCallback processes an IPN post. The order is resolved by the
// reference issued at initiation, carried back in invoice. custom must name
// the same order when present.
func (s *PaypalService) HandleCallback(ctx context.Context, payload Payload) (*CallbackResult, error) {
	metrics.Add(ctx, metrics.Get().CallbacksReceived, "provider", ProviderPaypal)

	ref := payload.Get("invoice")
	status := payload.Get("payment_status")
	if ref == "" || status == "" {
		return callbackError("missing transaction reference or payment status"),
			&ValidationError{Field: "invoice", Message: "transaction reference and payment status are required"}
	}
	if !strings.HasPrefix(ref, "paypal_") {
		return callbackError("invalid transaction reference"),
			&ValidationError{Field: "invoice", Message: "unrecognised transaction reference"}
	}

	order, err := s.store.FindByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrUnknownReference) {
			s.logger.Warn().Str("reference", ref).Msg("IPN for unknown reference")
			return callbackError("Order not found"), err
		}
		return nil, err
	}
	if custom := payload.Get("custom"); custom != "" && custom != order.ID.String() {
		s.logger.Warn().Str("reference", ref).Str("custom", custom).Msg("IPN order mismatch")
		return callbackError("order does not match reference"),
			&ValidationError{Field: "custom", Message: "order does not match the transaction reference"}
	}
	if order.Status.IsTerminal() {
		return callbackSuccess(order.ID, order.Status, "Already processed"), nil
	}

	if txn := payload.Get("txn_id"); txn != "" && txn != order.TransactionID {
		if err := s.store.SetTransactionID(ctx, order, txn); err != nil {
			return nil, err
		}
	}

	mapped := MapPaypalStatus(status)
	if mapped == models.OrderStatusPending {
		return callbackSuccess(order.ID, mapped, "Payment still pending"), nil
	}
	tr, err := s.store.Apply(ctx, order.ID, mapped)
	if err != nil {
		return nil, err
	}
	if !tr.Applied {
		return callbackSuccess(order.ID, tr.Status, "Already processed"), nil
	}
	return callbackSuccess(order.ID, tr.Status, "Order updated"), nil
}
