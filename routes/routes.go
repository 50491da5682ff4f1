package routes

import (
	"net/http"
	"time"

	"biscuit-backend/catalog"
	"biscuit-backend/checkout"
	"biscuit-backend/handlers"
	"biscuit-backend/middleware"
	"biscuit-backend/payment"
	"biscuit-backend/session"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Dependencies are the services shared by every handler. Nil limiters
// leave the corresponding endpoints unthrottled.
type Dependencies struct {
	DB             *gorm.DB
	Catalog        catalog.Catalog
	Checkout       *checkout.Service
	Sessions       session.Store
	SessionTTL     time.Duration
	SecureCookies  bool
	Logger         zerolog.Logger
	PollLimiter    *middleware.RateLimiter
	WebhookLimiter *middleware.RateLimiter
}

func throttle(rl *middleware.RateLimiter) gin.HandlersChain {
	if rl == nil {
		return nil
	}
	return gin.HandlersChain{rl.Middleware()}
}

func SetupRoutes(r *gin.Engine, deps Dependencies) {
	// Initialize handlers
	cartHandler := &handlers.CartHandler{DB: deps.DB, Catalog: deps.Catalog, Logger: deps.Logger}
	wishlistHandler := &handlers.WishlistHandler{DB: deps.DB, Catalog: deps.Catalog, Logger: deps.Logger}
	checkoutHandler := &handlers.CheckoutHandler{DB: deps.DB, Service: deps.Checkout, Logger: deps.Logger}
	webhookHandler := &handlers.WebhookHandler{Checkout: deps.Checkout, Logger: deps.Logger}

	api := r.Group("/api")

	// Provider webhooks carry no cookie or token
	hooks := api.Group("/payments", throttle(deps.WebhookLimiter)...)
	{
		mvola := webhookHandler.Callback(payment.ProviderMvola)
		hooks.POST("/mvola/callback", mvola)
		hooks.PUT("/mvola/callback", mvola)
		hooks.POST("/paypal/callback", webhookHandler.Callback(payment.ProviderPaypal))
	}

	shop := api.Group("")
	shop.Use(session.Middleware(deps.Sessions, session.Options{
		TTL:    deps.SessionTTL,
		Secure: deps.SecureCookies,
		Logger: deps.Logger,
	}))

	// Cart and wishlist work for guests and signed-in customers
	browse := shop.Group("")
	browse.Use(middleware.OptionalAuth())
	{
		browse.GET("/cart", cartHandler.GetCart)
		browse.POST("/cart/:product_id", cartHandler.AddToCart)
		browse.POST("/cart/:product_id/subtract", cartHandler.SubtractFromCart)
		browse.DELETE("/cart/:product_id", cartHandler.RemoveFromCart)
		browse.DELETE("/cart", cartHandler.ClearCart)

		browse.GET("/wishlist", wishlistHandler.GetWishlist)
		browse.POST("/wishlist/:product_id/toggle", wishlistHandler.Toggle)
	}

	// Protected routes (require authentication)
	protected := shop.Group("")
	protected.Use(middleware.AuthMiddleware())
	{
		protected.POST("/checkout", checkoutHandler.Checkout)
		protected.GET("/orders/:id", checkoutHandler.GetOrder)
		protected.GET("/orders/:id/pay", checkoutHandler.ProcessPayment)
		protected.GET("/orders/:id/waiting", checkoutHandler.Waiting)
		protected.GET("/orders/:id/status", append(throttle(deps.PollLimiter), checkoutHandler.OrderStatus)...)
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		sqlDB, err := deps.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
