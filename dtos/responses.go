package dtos

import (
	"biscuit-backend/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CartLineResponse struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url,omitempty"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type CartResponse struct {
	Items      []CartLineResponse `json:"items"`
	ItemCount  int                `json:"item_count"`
	TotalPrice decimal.Decimal    `json:"total_price"`
}

type WishlistResponse struct {
	Items []models.Product `json:"items"`
	Count int              `json:"count"`
}

type WishlistToggleResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Added     bool      `json:"added"`
	Count     int       `json:"count"`
}

type CheckoutResponse struct {
	Order       *models.Order `json:"order"`
	RedirectURL string        `json:"redirect_url"`
}

// WaitingResponse backs the page shown while the customer approves the
// payment on their phone.
type WaitingResponse struct {
	OrderID   uuid.UUID          `json:"order_id"`
	Status    models.OrderStatus `json:"status"`
	Total     decimal.Decimal    `json:"total_price"`
	StatusURL string             `json:"status_url"`
}
