package handlers

import (
	"errors"
	"net/http"

	"biscuit-backend/cart"
	"biscuit-backend/catalog"
	"biscuit-backend/checkout"
	"biscuit-backend/dtos"
	"biscuit-backend/payment"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// respondError maps domain errors to status codes. Anything unrecognised is
// logged and reported as a 500 without details.
func respondError(c *gin.Context, logger zerolog.Logger, err error) {
	var verr *payment.ValidationError
	var ferr *dtos.FieldError

	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.As(err, &ferr):
		c.JSON(http.StatusBadRequest, gin.H{"error": ferr.Message, "field": ferr.Field})
	case errors.Is(err, checkout.ErrLoginRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	case errors.Is(err, checkout.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Your cart is empty"})
	case errors.Is(err, cart.ErrInvalidQuantity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, payment.ErrUnsupportedMethod):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment method not supported"})
	case errors.Is(err, checkout.ErrOrderNotFound), errors.Is(err, payment.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, catalog.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
	case errors.Is(err, checkout.ErrInsufficientStock), errors.Is(err, checkout.ErrProductUnavailable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, payment.ErrUpstreamTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Payment provider timed out, please try again"})
	case payment.IsUpstream(err):
		logger.Warn().Err(err).Msg("payment provider error")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Payment provider error, please try again"})
	default:
		logger.Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
