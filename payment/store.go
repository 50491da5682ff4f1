package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"biscuit-backend/metrics"
	"biscuit-backend/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Notifier is told about orders that just completed.
type Notifier interface {
	OrderCompleted(order *models.Order)
}

// StatusStore is the only writer of Order.Status after checkout. Webhooks,
// polling and the cash-on-delivery policy all go through Apply.
type StatusStore struct {
	db       *gorm.DB
	notifier Notifier
	logger   zerolog.Logger
}

func NewStatusStore(db *gorm.DB, notifier Notifier, logger zerolog.Logger) *StatusStore {
	return &StatusStore{db: db, notifier: notifier, logger: logger}
}

// Transition is the outcome of Apply. Applied is false when another writer
// already moved the order out of pending.
type Transition struct {
	Applied bool
	Status  models.OrderStatus
}

// Apply moves a pending order to status. The conditional update makes
// concurrent webhook and poll deliveries resolve to the first writer.
// Stock reserved at checkout is released when the payment fails or is
// cancelled.
func (s *StatusStore) Apply(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) (Transition, error) {
	if status == models.OrderStatusPending {
		current, err := s.currentStatus(ctx, orderID)
		return Transition{Status: current}, err
	}

	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		applied, err = s.ApplyTx(tx, orderID, status)
		return err
	})
	if err != nil {
		return Transition{}, fmt.Errorf("apply order status: %w", err)
	}

	current, err := s.currentStatus(ctx, orderID)
	if err != nil {
		return Transition{}, err
	}

	if applied {
		s.Settled(ctx, orderID, status)
	} else {
		s.logger.Debug().Str("order_id", orderID.String()).Str("current", string(current)).
			Str("requested", string(status)).Msg("order already settled, transition skipped")
	}
	return Transition{Applied: applied, Status: current}, nil
}

// ApplyTx performs the pending to status update inside tx and reports
// whether this call won it. Callers that commit must then call Settled.
func (s *StatusStore) ApplyTx(tx *gorm.DB, orderID uuid.UUID, status models.OrderStatus) (bool, error) {
	if !models.IsValidTransition(models.OrderStatusPending, status) {
		return false, fmt.Errorf("%w: pending to %s", ErrInvalidTransition, status)
	}
	res := tx.Model(&models.Order{}).
		Where("id = ? AND status = ?", orderID, models.OrderStatusPending).
		Updates(map[string]any{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	if status == models.OrderStatusFailed || status == models.OrderStatusCancelled {
		if err := restock(tx, orderID); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Settled records a committed transition and sends the completion notice.
func (s *StatusStore) Settled(ctx context.Context, orderID uuid.UUID, status models.OrderStatus) {
	metrics.Add(ctx, metrics.Get().StatusTransitions, "to", string(status))
	s.logger.Info().Str("order_id", orderID.String()).Str("status", string(status)).Msg("order status updated")
	if status == models.OrderStatusCompleted {
		s.notifyCompleted(ctx, orderID)
	}
}

func restock(tx *gorm.DB, orderID uuid.UUID) error {
	var items []models.OrderItem
	if err := tx.Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return err
	}
	for _, item := range items {
		err := tx.Model(&models.Product{}).Where("id = ?", item.ProductID).
			UpdateColumn("stock", gorm.Expr("stock + ?", item.Quantity)).Error
		if err != nil {
			return fmt.Errorf("restock product %s: %w", item.ProductID, err)
		}
	}
	return nil
}

func (s *StatusStore) notifyCompleted(ctx context.Context, orderID uuid.UUID) {
	if s.notifier == nil {
		return
	}
	var order models.Order
	if err := s.db.WithContext(ctx).Preload("User").First(&order, "id = ?", orderID).Error; err != nil {
		s.logger.Warn().Err(err).Str("order_id", orderID.String()).Msg("cannot load completed order for notification")
		return
	}
	s.notifier.OrderCompleted(&order)
}

func (s *StatusStore) currentStatus(ctx context.Context, orderID uuid.UUID) (models.OrderStatus, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Select("id", "status").First(&order, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrOrderNotFound
	}
	if err != nil {
		return "", err
	}
	return order.Status, nil
}

func (s *StatusStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (s *StatusStore) FindByReference(ctx context.Context, ref string) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).First(&order, "transaction_reference = ?", ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownReference
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// SetReference stores the provider-facing reference on the order.
func (s *StatusStore) SetReference(ctx context.Context, order *models.Order, ref string) error {
	err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", order.ID).
		Updates(map[string]any{"transaction_reference": ref, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("save transaction reference: %w", err)
	}
	order.TransactionReference = &ref
	return nil
}

func (s *StatusStore) SetTransactionID(ctx context.Context, order *models.Order, id string) error {
	err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", order.ID).
		Updates(map[string]any{"transaction_id": id, "updated_at": time.Now()}).Error
	if err != nil {
		return fmt.Errorf("save transaction id: %w", err)
	}
	order.TransactionID = id
	return nil
}
