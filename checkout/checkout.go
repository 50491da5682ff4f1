// Package checkout turns a cart into an order and drives the order through
// payment initiation, status polling and provider callbacks.
package checkout

import (
	"context"
	"errors"
	"fmt"

	"biscuit-backend/cart"
	"biscuit-backend/catalog"
	"biscuit-backend/metrics"
	"biscuit-backend/models"
	"biscuit-backend/payment"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrLoginRequired      = errors.New("sign in to place an order")
	ErrEmptyCart          = errors.New("cart is empty")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrProductUnavailable = errors.New("product is no longer available")
)

const (
	msgPending   = "Waiting for payment confirmation"
	msgCompleted = "Payment confirmed"
	msgFailed    = "Payment failed. Please try again."
	msgCancelled = "Payment was cancelled"
	msgRetry     = "Payment provider unreachable, still waiting for confirmation"
)

// Request is a validated checkout submission.
type Request struct {
	PaymentMethod string
	// Phone is the normalized wallet number for mobile-money methods.
	Phone string
}

// PaymentOutcome tells the caller where to send the customer next.
type PaymentOutcome struct {
	Order       *models.Order
	Result      *payment.InitiateResult
	RedirectURL string
}

// StatusView is the polling payload.
type StatusView struct {
	Status      string             `json:"status"`
	OrderStatus models.OrderStatus `json:"order_status"`
	Message     string             `json:"message"`
	RedirectURL string             `json:"redirect_url,omitempty"`
}

type Service struct {
	db       *gorm.DB
	catalog  catalog.Catalog
	payments *payment.Registry
	store    *payment.StatusStore
	logger   zerolog.Logger
	baseURL  string
}

// NewService wires the orchestrator. baseURL is the public origin used to
// build provider callback URLs.
func NewService(db *gorm.DB, cat catalog.Catalog, payments *payment.Registry, store *payment.StatusStore, logger zerolog.Logger, baseURL string) *Service {
	return &Service{
		db:       db,
		catalog:  cat,
		payments: payments,
		store:    store,
		logger:   logger.With().Str("component", "checkout").Logger(),
		baseURL:  baseURL,
	}
}

func OrderPath(id uuid.UUID) string {
	return "/api/orders/" + id.String()
}

func WaitingPath(id uuid.UUID) string {
	return OrderPath(id) + "/waiting"
}

// PlaceOrder creates a pending order from the cart. Prices are re-read from
// the catalog and stock is reserved in the same transaction. The cart is
// emptied once the order is committed. Cash on delivery completes in the
// same transaction, so it is never left pending.
func (s *Service) PlaceOrder(ctx context.Context, principal models.Principal, c *cart.Cart, req Request) (*models.Order, error) {
	if !principal.Authenticated {
		return nil, ErrLoginRequired
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}
	if req.PaymentMethod != models.PaymentMethodCOD && !s.payments.Supports(req.PaymentMethod) {
		return nil, fmt.Errorf("%w: %s", payment.ErrUnsupportedMethod, req.PaymentMethod)
	}

	lines := c.Lines()
	ids := make([]uuid.UUID, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := s.catalog.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load cart products: %w", err)
	}

	order := &models.Order{
		UserID:        principal.UserID,
		Status:        models.OrderStatusPending,
		PaymentMethod: req.PaymentMethod,
		CustomerPhone: req.Phone,
	}
	total := decimal.Zero
	for _, l := range lines {
		product, ok := products[l.ProductID]
		if !ok || !product.Available {
			return nil, fmt.Errorf("%w: %s", ErrProductUnavailable, l.ProductID)
		}
		item := models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    l.Quantity,
			Price:       product.Price,
		}
		total = total.Add(item.Subtotal())
		order.Items = append(order.Items, item)
	}
	order.TotalPrice = total

	codSettled := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, item := range order.Items {
			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock >= ?", item.ProductID, item.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", item.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: %s", ErrInsufficientStock, item.ProductName)
			}
		}

		if err := tx.Omit(clause.Associations).Create(order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		for i := range order.Items {
			order.Items[i].OrderID = order.ID
		}
		if err := tx.Omit(clause.Associations).Create(&order.Items).Error; err != nil {
			return fmt.Errorf("create order items: %w", err)
		}

		if order.PaymentMethod == models.PaymentMethodCOD {
			applied, err := s.store.ApplyTx(tx, order.ID, models.OrderStatusCompleted)
			if err != nil {
				return fmt.Errorf("complete cash on delivery order: %w", err)
			}
			codSettled = applied
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if codSettled {
		order.Status = models.OrderStatusCompleted
		s.store.Settled(ctx, order.ID, order.Status)
	}

	metrics.Add(ctx, metrics.Get().OrdersCreated, "method", req.PaymentMethod)
	s.logger.Info().Str("order_id", order.ID.String()).Str("method", order.PaymentMethod).
		Str("total", order.TotalPrice.String()).Msg("order placed")

	if err := c.Clear(ctx); err != nil {
		s.logger.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to clear cart after checkout")
	}
	return order, nil
}

// ProcessPayment initiates the provider transaction for a pending order.
func (s *Service) ProcessPayment(ctx context.Context, principal models.Principal, orderID uuid.UUID) (*PaymentOutcome, error) {
	order, err := s.ownedOrder(ctx, principal, orderID, false)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return &PaymentOutcome{Order: order, RedirectURL: OrderPath(order.ID)}, nil
	}

	svc, err := s.payments.ForMethod(order.PaymentMethod)
	if err != nil {
		return nil, err
	}
	callbackURL := fmt.Sprintf("%s/api/payments/%s/callback", s.baseURL, svc.Name())

	res, err := svc.Initiate(ctx, order, callbackURL)
	if err != nil {
		return nil, err
	}

	redirect := res.RedirectURL
	if redirect == "" {
		redirect = WaitingPath(order.ID)
	}
	return &PaymentOutcome{Order: order, Result: res, RedirectURL: redirect}, nil
}

// PollStatus reports the order status, asking the provider only while the
// order is pending. Provider outages read as still pending.
func (s *Service) PollStatus(ctx context.Context, principal models.Principal, orderID uuid.UUID) (*StatusView, error) {
	order, err := s.ownedOrder(ctx, principal, orderID, false)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return viewFor(order.ID, string(order.Status), order.Status), nil
	}

	svc, err := s.payments.ForMethod(order.PaymentMethod)
	if err != nil {
		return viewFor(order.ID, string(order.Status), order.Status), nil
	}

	res, err := svc.CheckStatus(ctx, order)
	if err != nil {
		if payment.IsUpstream(err) {
			s.logger.Warn().Err(err).Str("order_id", order.ID.String()).Msg("status check failed")
			return &StatusView{
				Status:      string(models.OrderStatusPending),
				OrderStatus: models.OrderStatusPending,
				Message:     msgRetry,
			}, nil
		}
		return nil, err
	}

	view := viewFor(order.ID, res.Status, res.OrderStatus)
	if res.Message != "" && res.OrderStatus == models.OrderStatusPending {
		view.Message = res.Message
	}
	return view, nil
}

func viewFor(orderID uuid.UUID, status string, orderStatus models.OrderStatus) *StatusView {
	v := &StatusView{Status: status, OrderStatus: orderStatus}
	switch orderStatus {
	case models.OrderStatusCompleted:
		v.Message = msgCompleted
		v.RedirectURL = OrderPath(orderID)
	case models.OrderStatusFailed:
		v.Message = msgFailed
	case models.OrderStatusCancelled:
		v.Message = msgCancelled
	default:
		v.Message = msgPending
	}
	return v
}

// HandleCallback routes a webhook to its provider. A panic in provider code
// is turned into an error payload.
func (s *Service) HandleCallback(ctx context.Context, provider string, payload payment.Payload) (res *payment.CallbackResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("provider", provider).Msg("callback handler panicked")
			res = &payment.CallbackResult{Status: payment.CallbackError, Message: "internal error"}
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()

	svc, err := s.payments.ForProvider(provider)
	if err != nil {
		return &payment.CallbackResult{Status: payment.CallbackError, Message: "unknown provider"}, err
	}
	res, err = svc.HandleCallback(ctx, payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", provider).Msg("callback rejected")
	}
	return res, err
}

// GetOrder returns the principal's order with its items.
func (s *Service) GetOrder(ctx context.Context, principal models.Principal, orderID uuid.UUID) (*models.Order, error) {
	return s.ownedOrder(ctx, principal, orderID, true)
}

func (s *Service) ownedOrder(ctx context.Context, principal models.Principal, orderID uuid.UUID, withItems bool) (*models.Order, error) {
	if !principal.Authenticated {
		return nil, ErrLoginRequired
	}
	q := s.db.WithContext(ctx)
	if withItems {
		q = q.Preload("Items")
	}
	var order models.Order
	err := q.Where("id = ? AND user_id = ?", orderID, principal.UserID).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}
