package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/middleware"
	"marketplace/internal/orders"
)

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		log.Printf("[%s] panic recovered: %v", route, r)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":    "internal server error",
			"category": orders.KindInternal,
		})
	}
}

func respondWithError(c *gin.Context, status int, route string, message string) {
	log.Printf("[%s] returning error %d: %s", route, status, message)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

var kindStatus = map[orders.Kind]int{
	orders.KindValidation:         http.StatusBadRequest,
	orders.KindNotFound:           http.StatusNotFound,
	orders.KindForbidden:          http.StatusForbidden,
	orders.KindConflict:           http.StatusConflict,
	orders.KindTransactionFailure: http.StatusConflict,
	orders.KindInternal:           http.StatusInternalServerError,
}

// respondEngineError renders an engine error with its category and code.
// Internal failures are logged with their cause and hidden from the caller.
func respondEngineError(c *gin.Context, route string, err error) {
	var engineErr *orders.Error
	if !errors.As(err, &engineErr) || engineErr.Kind == orders.KindInternal {
		log.Printf("[%s] returning error %d: %v", route, http.StatusInternalServerError, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":    "internal server error",
			"category": orders.KindInternal,
			"code":     orders.CodeInternal,
		})
		return
	}

	status, ok := kindStatus[engineErr.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	log.Printf("[%s] returning error %d: %s", route, status, engineErr.Message)
	body := gin.H{
		"error":    engineErr.Message,
		"category": engineErr.Kind,
		"code":     engineErr.Code,
	}
	if len(engineErr.Details) > 0 {
		body["details"] = engineErr.Details
	}
	c.AbortWithStatusJSON(status, body)
}

func respondBadID(c *gin.Context, route, field string) {
	log.Printf("[%s] returning error %d: invalid %s", route, http.StatusBadRequest, field)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"error":    "invalid " + field,
		"category": orders.KindValidation,
		"code":     orders.CodeInvalidInput,
	})
}

func parseObjectIDParam(c *gin.Context, route, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		respondBadID(c, route, name)
		return primitive.NilObjectID, false
	}
	return id, true
}

// actorFrom turns the authenticated principal into an engine actor. The
// route must sit behind middleware.AuthGuard.
func actorFrom(c *gin.Context, route string) (orders.Actor, bool) {
	principal, ok := middleware.CurrentPrincipal(c)
	if !ok {
		respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
		return orders.Actor{}, false
	}
	return orders.Actor{ID: principal.UserID, Role: principal.Role}, true
}

func requestContext(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}
