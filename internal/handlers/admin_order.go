package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

func ReleaseEscrow(svc OrderService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/orders/:id/escrow/release"
		defer handlePanic(c, route)

		actor, ok := actorFrom(c, route)
		if !ok {
			return
		}
		orderID, ok := parseObjectIDParam(c, route, "id")
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, timeout)
		defer cancel()

		res, err := svc.ReleaseEscrow(ctx, actor, orderID)
		if err != nil {
			respondEngineError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func GetOrderLogs(svc OrderService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/orders/:id/logs"
		defer handlePanic(c, route)

		actor, ok := actorFrom(c, route)
		if !ok {
			return
		}
		orderID, ok := parseObjectIDParam(c, route, "id")
		if !ok {
			return
		}

		ctx, cancel := requestContext(c, timeout)
		defer cancel()

		logs, err := svc.GetOrderLogs(ctx, actor, orderID)
		if err != nil {
			respondEngineError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orderId": orderID.Hex(), "logs": logs})
	}
}
