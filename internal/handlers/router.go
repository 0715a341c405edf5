package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"marketplace/internal/middleware"
	"marketplace/internal/models"
)

func NewRouter(svc OrderService, verifier middleware.TokenVerifier, pinger Pinger, timeout time.Duration) *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", Healthz(pinger))

	authed := r.Group("/orders")
	authed.Use(middleware.AuthGuard(verifier))
	{
		authed.POST("", CreateOrder(svc, timeout))
		authed.GET("", GetOrders(svc, timeout))
		authed.GET("/:id", GetOrder(svc, timeout))
		authed.PATCH("/:id/status", UpdateOrderStatus(svc, timeout))
		authed.POST("/:id/payment", middleware.RequireRole(models.RoleBuyer), ConfirmPayment(svc, timeout))
	}

	admin := r.Group("/admin/api")
	admin.Use(middleware.AdminAuth(verifier))
	{
		admin.POST("/orders/:id/escrow/release", ReleaseEscrow(svc, timeout))
		admin.GET("/orders/:id/logs", GetOrderLogs(svc, timeout))
	}

	return r
}
