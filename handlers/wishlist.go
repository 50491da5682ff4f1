package handlers

import (
	"net/http"

	"biscuit-backend/catalog"
	"biscuit-backend/dtos"
	"biscuit-backend/middleware"
	"biscuit-backend/models"
	"biscuit-backend/session"
	"biscuit-backend/wishlist"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type WishlistHandler struct {
	DB      *gorm.DB
	Catalog catalog.Catalog
	Logger  zerolog.Logger
}

func (h *WishlistHandler) load(c *gin.Context) (*wishlist.Wishlist, bool) {
	wl, err := wishlist.New(c.Request.Context(), h.DB, session.FromContext(c), middleware.CurrentPrincipal(c), h.Logger)
	if err != nil {
		respondError(c, h.Logger, err)
		return nil, false
	}
	return wl, true
}

func (h *WishlistHandler) GetWishlist(c *gin.Context) {
	wl, ok := h.load(c)
	if !ok {
		return
	}

	ids := wl.ProductIDs()
	products, err := h.Catalog.GetProducts(c.Request.Context(), ids)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}

	items := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, found := products[id]; found {
			items = append(items, p)
		}
	}
	c.JSON(http.StatusOK, dtos.WishlistResponse{Items: items, Count: len(items)})
}

func (h *WishlistHandler) Toggle(c *gin.Context) {
	productID, ok := productIDParam(c)
	if !ok {
		return
	}
	if _, err := h.Catalog.GetProduct(c.Request.Context(), productID); err != nil {
		respondError(c, h.Logger, err)
		return
	}

	wl, ok := h.load(c)
	if !ok {
		return
	}
	added, err := wl.Toggle(c.Request.Context(), productID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	count, err := wl.Count(c.Request.Context())
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, dtos.WishlistToggleResponse{
		ProductID: productID,
		Added:     added,
		Count:     count,
	})
}
