package payment

import (
	"biscuit-backend/models"
)

// Provider vocabularies mapped onto the canonical order statuses. Anything
// missing from a table maps to failed: an unrecognised word is never
// treated as a successful payment.
var mvolaStatuses = map[string]models.OrderStatus{
	"pending":   models.OrderStatusPending,
	"completed": models.OrderStatusCompleted,
	"failed":    models.OrderStatusFailed,
	"cancelled": models.OrderStatusCancelled,
}

var paypalStatuses = map[string]models.OrderStatus{
	"Completed": models.OrderStatusCompleted,
	"Pending":   models.OrderStatusPending,
	"Failed":    models.OrderStatusFailed,
	"Denied":    models.OrderStatusFailed,
	"Expired":   models.OrderStatusFailed,
	"Refunded":  models.OrderStatusCancelled,
	"Reversed":  models.OrderStatusCancelled,
	"Voided":    models.OrderStatusCancelled,
}

func MapMvolaStatus(s string) models.OrderStatus {
	if status, ok := mvolaStatuses[s]; ok {
		return status
	}
	return models.OrderStatusFailed
}

func MapPaypalStatus(s string) models.OrderStatus {
	if status, ok := paypalStatuses[s]; ok {
		return status
	}
	return models.OrderStatusFailed
}
