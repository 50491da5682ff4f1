package dtos

import (
	"fmt"
	"strings"

	"biscuit-backend/models"
	"biscuit-backend/utils"
)

// CheckoutRequest is the checkout form. Which payment fields are required
// depends on the method; Validate checks that after binding. Card fields are
// only checked for completeness: card payments are captured on PayPal's
// hosted page, so they are never stored, logged or forwarded.
type CheckoutRequest struct {
	PaymentMethod string `json:"payment_method" form:"payment_method" binding:"required,oneof=mvola orange airtel card paypal cod"`
	WalletNumber  string `json:"wallet_number" form:"wallet_number" binding:"omitempty,mg_phone"`
	CardNumber    string `json:"card_number" form:"card_number" binding:"omitempty,numeric,min=12,max=19"`
	ExpiryDate    string `json:"expiry_date" form:"expiry_date" binding:"omitempty,len=5"`
	CVV           string `json:"cvv" form:"cvv" binding:"omitempty,numeric,min=3,max=4"`
	PaypalEmail   string `json:"paypal_email" form:"paypal_email" binding:"omitempty,email"`
}

// FieldError names the missing field so handlers can report it.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate applies the per-method requirements.
func (r *CheckoutRequest) Validate() error {
	switch {
	case models.IsMobileMoney(r.PaymentMethod):
		if strings.TrimSpace(r.WalletNumber) == "" {
			return &FieldError{Field: "wallet_number", Message: "Wallet number is required for mobile money."}
		}
	case r.PaymentMethod == models.PaymentMethodCard:
		if r.CardNumber == "" {
			return &FieldError{Field: "card_number", Message: "Card number is required."}
		}
		if r.ExpiryDate == "" {
			return &FieldError{Field: "expiry_date", Message: "Expiry date is required."}
		}
		if r.CVV == "" {
			return &FieldError{Field: "cvv", Message: "CVV is required."}
		}
	case r.PaymentMethod == models.PaymentMethodPaypal:
		if r.PaypalEmail == "" {
			return &FieldError{Field: "paypal_email", Message: "PayPal email is required."}
		}
	}
	return nil
}

// Phone is the wallet number in provider form, or "" for other methods.
func (r *CheckoutRequest) Phone() string {
	if !models.IsMobileMoney(r.PaymentMethod) {
		return ""
	}
	return utils.NormalizePhone(r.WalletNumber)
}
