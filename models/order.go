package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

const (
	PaymentMethodMvola  = "mvola"
	PaymentMethodOrange = "orange"
	PaymentMethodAirtel = "airtel"
	PaymentMethodCard   = "card"
	PaymentMethodPaypal = "paypal"
	PaymentMethodCOD    = "cod"
)

// IsMobileMoney reports whether method is paid from a mobile wallet.
func IsMobileMoney(method string) bool {
	switch method {
	case PaymentMethodMvola, PaymentMethodOrange, PaymentMethodAirtel:
		return true
	}
	return false
}

type Order struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID               uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	User                 User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	TotalPrice           decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_price"`
	Status               OrderStatus     `gorm:"default:pending;index" json:"status"`
	PaymentMethod        string          `gorm:"not null" json:"payment_method"`
	CustomerPhone        string          `json:"customer_phone,omitempty"`
	TransactionReference *string         `gorm:"uniqueIndex" json:"transaction_reference,omitempty"`
	TransactionID        string          `gorm:"index" json:"transaction_id,omitempty"`
	Items                []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"order_id"`
	Order       Order           `gorm:"foreignKey:OrderID" json:"-"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"product_id"`
	Product     Product         `gorm:"foreignKey:ProductID" json:"-"`
	ProductName string          `json:"product_name"` // Snapshot of product name at time of order
	Quantity    int             `gorm:"not null" json:"quantity"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"` // Snapshot of unit price at time of order
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = OrderStatusPending
	}
	return nil
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// Subtotal is the snapshotted line total.
func (i *OrderItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Reference returns the payment reference or "" when none was issued yet.
func (o *Order) Reference() string {
	if o.TransactionReference == nil {
		return ""
	}
	return *o.TransactionReference
}

// AllowedTransitions defines the valid order status state machine.
var AllowedTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusCompleted, OrderStatusFailed, OrderStatusCancelled},
	OrderStatusCompleted: {},
	OrderStatusFailed:    {},
	OrderStatusCancelled: {},
}

// IsValidTransition checks if a status transition is allowed.
func IsValidTransition(from, to OrderStatus) bool {
	allowed, exists := AllowedTransitions[from]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func (s OrderStatus) IsTerminal() bool {
	allowed, exists := AllowedTransitions[s]
	return exists && len(allowed) == 0
}
