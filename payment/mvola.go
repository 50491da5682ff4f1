package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"biscuit-backend/config"
	"biscuit-backend/metrics"
	"biscuit-backend/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	ProviderMvola = "mvola"

	mvolaTokenKey = "mvola_token"
	// Tokens live one hour upstream; refresh five minutes early.
	mvolaTokenTTL = 55 * time.Minute

	mvolaCurrency   = "Ar"
	mvolaDateLayout = "2006-01-02T15:04:05.000Z"
)

// MvolaService drives the Mvola merchant-pay API: the customer approves a
// push request on their phone and Mvola reports the outcome through the
// callback URL or the status endpoint.
type MvolaService struct {
	cfg    config.MvolaConfig
	store  *StatusStore
	tokens TokenCache
	client *http.Client
	logger zerolog.Logger
	now    func() time.Time
}

type MvolaOption func(*MvolaService)

func WithHTTPClient(client *http.Client) MvolaOption {
	return func(s *MvolaService) { s.client = client }
}

func WithLogger(logger zerolog.Logger) MvolaOption {
	return func(s *MvolaService) { s.logger = logger }
}

func WithClock(now func() time.Time) MvolaOption {
	return func(s *MvolaService) { s.now = now }
}

func NewMvolaService(cfg config.MvolaConfig, store *StatusStore, tokens TokenCache, opts ...MvolaOption) *MvolaService {
	s := &MvolaService{
		cfg:    cfg,
		store:  store,
		tokens: tokens,
		client: &http.Client{Timeout: upstreamTimeout},
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("provider", ProviderMvola).Logger()
	return s
}

func (s *MvolaService) Name() string { return ProviderMvola }

type mvolaParty struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type mvolaPaymentRequest struct {
	Amount                                     string       `json:"amount"`
	Currency                                   string       `json:"currency"`
	DescriptionText                            string       `json:"descriptionText"`
	RequestDate                                string       `json:"requestDate"`
	DebitParty                                 []mvolaParty `json:"debitParty"`
	CreditParty                                []mvolaParty `json:"creditParty"`
	Metadata                                   []mvolaParty `json:"metadata"`
	RequestingOrganisationTransactionReference string       `json:"requestingOrganisationTransactionReference"`
}

type mvolaPaymentResponse struct {
	Status              string `json:"status"`
	ServerCorrelationID string `json:"serverCorrelationId"`
	NotificationMethod  string `json:"notificationMethod"`
}

// Initiate sends the push request. The reference is persisted before the
// call so a callback racing the response can still find the order.
func (s *MvolaService) Initiate(ctx context.Context, order *models.Order, callbackURL string) (*InitiateResult, error) {
	if order.Status.IsTerminal() {
		return nil, &ValidationError{Field: "status", Message: fmt.Sprintf("order is already %s", order.Status)}
	}
	if strings.TrimSpace(order.CustomerPhone) == "" {
		return nil, &ValidationError{Field: "customer_phone", Message: "customer phone number is required for Mvola payment"}
	}
	if !strings.HasPrefix(s.cfg.APIURL, "https://") {
		return nil, &ValidationError{Field: "api_url", Message: "invalid Mvola API URL, check MVOLA_API_URL"}
	}

	ref := order.Reference()
	if ref == "" {
		ref = NewTransactionReference(order.ID)
		if err := s.store.SetReference(ctx, order, ref); err != nil {
			return nil, err
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, upstreamTimeout)
	defer cancel()

	token, err := s.accessToken(callCtx)
	if err != nil {
		s.recordFailure(ctx, "token")
		return nil, err
	}

	body, err := json.Marshal(mvolaPaymentRequest{
		Amount:          order.TotalPrice.StringFixed(0),
		Currency:        mvolaCurrency,
		DescriptionText: "Order " + order.ID.String(),
		RequestDate:     s.now().UTC().Format(mvolaDateLayout),
		DebitParty:      []mvolaParty{{Key: "msisdn", Value: order.CustomerPhone}},
		CreditParty:     []mvolaParty{{Key: "msisdn", Value: s.cfg.PartnerMSISDN}},
		Metadata:        []mvolaParty{{Key: "partnerName", Value: s.cfg.PartnerName}},
		RequestingOrganisationTransactionReference: ref,
	})
	if err != nil {
		return nil, fmt.Errorf("encode mvola request: %w", err)
	}

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, s.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build mvola request: %w", err)
	}
	s.setHeaders(req, token)
	req.Header.Set("X-Callback-URL", callbackURL)

	var resp mvolaPaymentResponse
	if err := s.do(req, "initiate", &resp); err != nil {
		s.recordFailure(ctx, "initiate")
		s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("mvola payment initiation failed")
		return nil, err
	}

	if resp.ServerCorrelationID != "" {
		if err := s.store.SetTransactionID(ctx, order, resp.ServerCorrelationID); err != nil {
			return nil, err
		}
	}
	metrics.Add(ctx, metrics.Get().PaymentsInitiated, "provider", ProviderMvola)
	s.logger.Info().Str("order_id", order.ID.String()).Str("reference", ref).
		Str("correlation_id", resp.ServerCorrelationID).Msg("mvola payment initiated")

	status := resp.Status
	if status == "" {
		status = string(models.OrderStatusPending)
	}
	return &InitiateResult{
		Status:               status,
		ProviderReference:    resp.ServerCorrelationID,
		TransactionReference: ref,
		NotificationMethod:   resp.NotificationMethod,
	}, nil
}

// CheckStatus asks Mvola about a pending order and applies a terminal answer.
func (s *MvolaService) CheckStatus(ctx context.Context, order *models.Order) (*StatusResult, error) {
	if order.Status.IsTerminal() {
		return &StatusResult{Status: string(order.Status), OrderStatus: order.Status}, nil
	}
	if order.TransactionID == "" {
		return &StatusResult{
			Status:      string(models.OrderStatusPending),
			OrderStatus: models.OrderStatusPending,
			Message:     "payment not initiated yet",
		}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, upstreamTimeout)
	defer cancel()

	token, err := s.accessToken(callCtx)
	if err != nil {
		s.recordFailure(ctx, "token")
		return nil, err
	}

	endpoint := s.cfg.APIURL + "/status/" + url.PathEscape(order.TransactionID)
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build mvola status request: %w", err)
	}
	s.setHeaders(req, token)

	var resp struct {
		Status string `json:"status"`
	}
	if err := s.do(req, "status", &resp); err != nil {
		s.recordFailure(ctx, "status")
		return nil, err
	}

	mapped := MapMvolaStatus(resp.Status)
	if mapped == models.OrderStatusPending {
		return &StatusResult{Status: resp.Status, OrderStatus: mapped}, nil
	}
	tr, err := s.store.Apply(ctx, order.ID, mapped)
	if err != nil {
		return nil, err
	}
	order.Status = tr.Status
	return &StatusResult{Status: resp.Status, OrderStatus: tr.Status}, nil
}

// HandleCallback processes Mvola's PUT/POST notification. Deliveries for
// an already settled order are acknowledged without changes.
func (s *MvolaService) HandleCallback(ctx context.Context, payload Payload) (*CallbackResult, error) {
	metrics.Add(ctx, metrics.Get().CallbacksReceived, "provider", ProviderMvola)

	ref := payload.Get("requestingOrganisationTransactionReference")
	status := payload.Get("transactionStatus")
	if ref == "" || status == "" {
		return callbackError("missing transaction reference or status"),
			&ValidationError{Field: "requestingOrganisationTransactionReference", Message: "transaction reference and status are required"}
	}

	order, err := s.store.FindByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, ErrUnknownReference) {
			s.logger.Warn().Str("reference", ref).Msg("callback for unknown reference")
			return callbackError("Order not found"), err
		}
		return nil, err
	}
	if order.Status.IsTerminal() {
		return callbackSuccess(order.ID, order.Status, "Already processed"), nil
	}

	mapped := MapMvolaStatus(status)
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

// accessToken returns the cached client-credentials token or fetches a new
// one. A broken cache is logged and bypassed.
func (s *MvolaService) accessToken(ctx context.Context) (string, error) {
	token, err := s.tokens.Get(ctx, mvolaTokenKey)
	if err != nil {
		s.logger.Warn().Err(err).Msg("token cache read failed")
	}
	if token != "" {
		metrics.Add(ctx, metrics.Get().TokenCacheHits, "provider", ProviderMvola)
		return token, nil
	}
	metrics.Add(ctx, metrics.Get().TokenCacheMisses, "provider", ProviderMvola)

	form := url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {s.cfg.Scope},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build mvola token request: %w", err)
	}
	req.SetBasicAuth(s.cfg.ClientID, s.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	if err := s.do(req, "token", &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &UpstreamError{Provider: ProviderMvola, Err: errors.New("token response has no access_token")}
	}

	if err := s.tokens.Set(ctx, mvolaTokenKey, resp.AccessToken, mvolaTokenTTL); err != nil {
		s.logger.Warn().Err(err).Msg("token cache write failed")
	}
	return resp.AccessToken, nil
}

func (s *MvolaService) setHeaders(req *http.Request, token string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Version", "1.0")
	req.Header.Set("X-CorrelationID", uuid.NewString())
	req.Header.Set("UserLanguage", "MG")
	req.Header.Set("partnerName", s.cfg.PartnerName)
	req.Header.Set("UserAccountIdentifier", "msisdn;"+s.cfg.PartnerMSISDN)
	req.Header.Set("Cache-Control", "no-cache")
}

// do executes req and decodes a 2xx JSON body into out.
func (s *MvolaService) do(req *http.Request, op string, out any) error {
	start := s.now()
	resp, err := s.client.Do(req)
	metrics.Get().UpstreamDurationMs.Record(req.Context(), float64(s.now().Sub(start).Milliseconds()),
		metric.WithAttributes(attribute.String("provider", ProviderMvola), attribute.String("op", op)))
	if err != nil {
		if isTimeout(err) {
			return ErrUpstreamTimeout
		}
		return &UpstreamError{Provider: ProviderMvola, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if isTimeout(err) {
			return ErrUpstreamTimeout
		}
		return &UpstreamError{Provider: ProviderMvola, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{Provider: ProviderMvola, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &UpstreamError{Provider: ProviderMvola, Err: fmt.Errorf("decode %s response: %w", op, err)}
	}
	return nil
}

func (s *MvolaService) recordFailure(ctx context.Context, op string) {
	metrics.Add(ctx, metrics.Get().PaymentFailures, "provider", ProviderMvola, "op", op)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
