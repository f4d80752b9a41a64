package handler

import (
	"tenapay/internal/config"
	"tenapay/internal/infrastructure/ws"
	"tenapay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// SetupRouter wires middleware and routes.
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config, hub *ws.Hub, dispatcher *service.NotificationService, claimService *service.ClaimService) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(db, rdb, cfg, hub, dispatcher, claimService)

	api := r.Group("/api/v1")
	{
		users := api.Group("/users")
		{
			users.POST("/register", h.Register)
			users.POST("/login", h.Login)
			users.GET("/me", AuthMiddleware(&cfg.Auth), h.Me)
		}

		// Called by the gateway, not by members; deliberately unauthenticated.
		api.POST("/webhook/arifpay", h.PaymentWebhook)

		authed := api.Group("")
		authed.Use(AuthMiddleware(&cfg.Auth))
		{
			claims := authed.Group("/claims")
			{
				claims.POST("", h.RequestClaim)
				claims.GET("/history", h.ClaimHistory)
			}

			payments := authed.Group("/payments")
			{
				payments.POST("/checkout", h.Checkout)
			}

			notifications := authed.Group("/notifications")
			{
				notifications.GET("", h.ListNotifications)
				notifications.POST("/:id/read", h.MarkNotificationRead)
				notifications.DELETE("/:id", h.DeleteNotification)
			}

			authed.GET("/ws", h.Notify)

			admin := authed.Group("/admin")
			admin.Use(AdminMiddleware())
			{
				admin.GET("/overview", h.AdminOverview)
				admin.GET("/users/:id", h.AdminUserDetail)
				admin.GET("/audits", h.AdminAudits)
				admin.POST("/reconcile/:id", h.AdminReconcile)
			}
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
