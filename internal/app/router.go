package app

import (
	billingHandler "leadpilot-service/internal/handlers/billing"
	"leadpilot-service/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	BillingHandler *billingHandler.BillingHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	api := r.Group("/api/v1")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "version": "1.0.0"})
	})

	billing := api.Group("/billing")
	billing.Use(h.AuthMiddleware.Auth())
	{
		billing.POST("/orders", h.BillingHandler.CreateOrder)
		billing.POST("/verify", h.BillingHandler.VerifyPayment)

		billing.GET("/subscriptions", h.BillingHandler.ListSubscriptions)
		billing.GET("/subscriptions/active", h.BillingHandler.GetActiveSubscription)
	}
}
