package handlers

import (
	"net/http"

	"biscuit-backend/cart"
	"biscuit-backend/catalog"
	"biscuit-backend/dtos"
	"biscuit-backend/middleware"
	"biscuit-backend/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type CartHandler struct {
	DB      *gorm.DB
	Catalog catalog.Catalog
	Logger  zerolog.Logger
}

type quantityRequest struct {
	Quantity int `json:"quantity" form:"quantity" binding:"omitempty,min=1,max=99"`
}

// bindQuantity reads an optional quantity, defaulting to 1.
func bindQuantity(c *gin.Context) (int, bool) {
	var req quantityRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBind(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return 0, false
		}
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	return req.Quantity, true
}

func productIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("product_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *CartHandler) load(c *gin.Context) (*cart.Cart, bool) {
	crt, err := cart.New(c.Request.Context(), h.DB, session.FromContext(c), middleware.CurrentPrincipal(c), h.Logger)
	if err != nil {
		respondError(c, h.Logger, err)
		return nil, false
	}
	return crt, true
}

func (h *CartHandler) GetCart(c *gin.Context) {
	crt, ok := h.load(c)
	if !ok {
		return
	}
	h.respond(c, crt)
}

func (h *CartHandler) AddToCart(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	qty, ok := bindQuantity(c)
	if !ok {
		return
	}

	product, err := h.Catalog.GetProduct(c.Request.Context(), productID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	if !product.Available {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Product is not available"})
		return
	}

	crt, ok := h.load(c)
	if !ok {
		return
	}
	if !product.InStock(crt.Quantity(product.ID) + qty) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient stock"})
		return
	}
	if err := crt.Add(c.Request.Context(), product, qty); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	h.respond(c, crt)
}

func (h *CartHandler) SubtractFromCart(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	qty, ok := bindQuantity(c)
	if !ok {
		return
	}

	crt, ok := h.load(c)
	if !ok {
		return
	}
	if err := crt.Subtract(c.Request.Context(), cart.ByID(productID), qty); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	h.respond(c, crt)
}

func (h *CartHandler) RemoveFromCart(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	crt, ok := h.load(c)
	if !ok {
		return
	}
	if err := crt.Remove(c.Request.Context(), cart.ByID(productID)); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	h.respond(c, crt)
}

func (h *CartHandler) ClearCart(c *gin.Context) {
	crt, ok := h.load(c)
	if !ok {
		return
	}
	if err := crt.Clear(c.Request.Context()); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cart cleared"})
}

// respond renders the cart with current product names. Lines whose product
// was deleted from the catalog still show with their captured price.
func (h *CartHandler) respond(c *gin.Context, crt *cart.Cart) {
	lines := crt.Lines()
	ids := make([]uuid.UUID, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := h.Catalog.GetProducts(c.Request.Context(), ids)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	resp := dtos.CartResponse{
		Items:      make([]dtos.CartLineResponse, 0, len(lines)),
		ItemCount:  crt.ItemCount(),
		TotalPrice: crt.TotalPrice(),
	}
	for _, l := range lines {
		p := products[l.ProductID]
		resp.Items = append(resp.Items, dtos.CartLineResponse{
			ProductID: l.ProductID,
			Name:      p.Name,
			ImageURL:  p.ImageURL,
			Quantity:  l.Quantity,
			Price:     l.Price,
			Subtotal:  l.Subtotal(),
		})
	}
	c.JSON(http.StatusOK, resp)
}
