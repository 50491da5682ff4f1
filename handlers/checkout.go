package handlers

import (
	"net/http"

	"biscuit-backend/cart"
	"biscuit-backend/checkout"
	"biscuit-backend/dtos"
	"biscuit-backend/middleware"
	"biscuit-backend/models"
	"biscuit-backend/session"
	"biscuit-backend/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type CheckoutHandler struct {
	DB      *gorm.DB
	Service *checkout.Service
	Logger  zerolog.Logger
}

func orderIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return uuid.Nil, false
	}
	return id, true
}

// Checkout turns the session cart into a pending order. The response points
// at the payment step, or at the order itself for cash on delivery.
func (h *CheckoutHandler) Checkout(c *gin.Context) {
	var req dtos.CheckoutRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": utils.SanitizeValidationError(err)})
		return
	}
	if err := req.Validate(); err != nil {
		respondError(c, h.Logger, err)
		return
	}

	principal := middleware.CurrentPrincipal(c)
	crt, err := cart.New(c.Request.Context(), h.DB, session.FromContext(c), principal, h.Logger)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	order, err := h.Service.PlaceOrder(c.Request.Context(), principal, crt, checkout.Request{
		PaymentMethod: req.PaymentMethod,
		Phone:         req.Phone(),
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	redirect := checkout.OrderPath(order.ID) + "/pay"
	if order.Status.IsTerminal() {
		redirect = checkout.OrderPath(order.ID)
	}
	c.JSON(http.StatusCreated, dtos.CheckoutResponse{Order: order, RedirectURL: redirect})
}

// ProcessPayment starts the provider flow and redirects the browser.
func (h *CheckoutHandler) ProcessPayment(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	outcome, err := h.Service.ProcessPayment(c.Request.Context(), middleware.CurrentPrincipal(c), orderID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.Redirect(http.StatusFound, outcome.RedirectURL)
}

func (h *CheckoutHandler) Waiting(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	order, err := h.Service.GetOrder(c.Request.Context(), middleware.CurrentPrincipal(c), orderID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if order.Status != models.OrderStatusPending {
		c.Redirect(http.StatusFound, checkout.OrderPath(order.ID))
		return
	}
	c.JSON(http.StatusOK, dtos.WaitingResponse{
		OrderID:   order.ID,
		Status:    order.Status,
		Total:     order.TotalPrice,
		StatusURL: checkout.OrderPath(order.ID) + "/status",
	})
}

func (h *CheckoutHandler) GetOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	order, err := h.Service.GetOrder(c.Request.Context(), middleware.CurrentPrincipal(c), orderID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// OrderStatus is polled by the waiting page. Provider outages read as
// pending so the page keeps polling.
func (h *CheckoutHandler) OrderStatus(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}
	view, err := h.Service.PollStatus(c.Request.Context(), middleware.CurrentPrincipal(c), orderID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
