package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/models"
	"marketplace/internal/orders"
)

// OrderService is the engine surface the HTTP layer drives.
type OrderService interface {
	CreateOrder(ctx context.Context, in orders.CreateOrderInput) (orders.CreateOrderResult, error)
	UpdateOrderStatus(ctx context.Context, actor orders.Actor, in orders.StatusUpdate) (orders.StatusResult, error)
	ConfirmPayment(ctx context.Context, actor orders.Actor, in orders.PaymentInput) (orders.PaymentResult, error)
	ReleaseEscrow(ctx context.Context, actor orders.Actor, orderID primitive.ObjectID) (orders.EscrowRelease, error)
	GetOrderLogs(ctx context.Context, actor orders.Actor, orderID primitive.ObjectID) ([]orders.LogEntry, error)
	GetOrder(ctx context.Context, actor orders.Actor, orderID primitive.ObjectID) (models.Order, error)
	ListOrders(ctx context.Context, actor orders.Actor, page, limit int64) (orders.OrderPage, error)
}

/* =========================
   REQUEST DTOs
========================= */

type orderLineRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type deliveryAddressRequest struct {
	Street string `json:"street" binding:"required"`
	City   string `json:"city" binding:"required"`
	Phone  string `json:"phone" binding:"required"`
	Notes  string `json:"notes"`
}

type createOrderRequest struct {
	SellerID        string                 `json:"sellerId" binding:"required"`
	Products        []orderLineRequest     `json:"products" binding:"required,min=1,dive"`
	PaymentMethod   string                 `json:"paymentMethod" binding:"required"`
	DeliveryAddress deliveryAddressRequest `json:"deliveryAddress"`
	ChatID          string                 `json:"chatId"`
}

type proofOfDeliveryRequest struct {
	PhotoURL      string `json:"photoUrl"`
	OTPCode       string `json:"otpCode"`
	SignatureURL  string `json:"signatureUrl"`
	DeliveryNotes string `json:"deliveryNotes"`
}

type updateStatusRequest struct {
	Status           string                  `json:"status" binding:"required"`
	TrackingNumber   string                  `json:"trackingNumber"`
	TrackingProvider string                  `json:"trackingProvider"`
	ProofOfDelivery  *proofOfDeliveryRequest `json:"proofOfDelivery"`
	Notes            string                  `json:"notes"`
}

type confirmPaymentRequest struct {
	TransactionID string `json:"transactionId" binding:"required"`
	ReceiptID     string `json:"receiptId"`
}

/* =========================
   CREATE ORDER
========================= */

func CreateOrder(svc OrderService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders"
		defer handlePanic(c, route)

		actor, ok := actorFrom(c, route)
		if !ok {
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		in, field, ok := buildCreateOrderInput(actor, req)
		if !ok {
			respondBadID(c, route, field)
			return
		}

		ctx, cancel := requestContext(c, timeout)
		defer cancel()

		res, err := svc.CreateOrder(ctx, in)
		if err != nil {
			respondEngineError(c, route, err)
			return
		}
		c.JSON(http.StatusCreated, res)
	}
}

// buildCreateOrderInput converts hex ids; on failure it names the bad field.
func buildCreateOrderInput(actor orders.Actor, req createOrderRequest) (orders.CreateOrderInput, string, bool) {
	sellerID, err := primitive.ObjectIDFromHex(strings.TrimSpace(req.SellerID))
	if err != nil {
		return orders.CreateOrderInput{}, "sellerId", false
	}

	lines := make([]orders.LineInput, 0, len(req.Products))
	for _, line := range req.Products {
		productID, err := primitive.ObjectIDFromHex(strings.TrimSpace(line.ProductID))
		if err != nil {
			return orders.CreateOrderInput{}, "productId", false
		}
		lines = append(lines, orders.LineInput{ProductID: productID, Quantity: line.Quantity})
	}

	in := orders.CreateOrderInput{
		BuyerID:       actor.ID,
		SellerID:      sellerID,
		Products:      lines,
		PaymentMethod: req.PaymentMethod,
		DeliveryAddress: models.DeliveryAddress{
			Street: req.DeliveryAddress.Street,
			City:   req.DeliveryAddress.City,
			Phone:  req.DeliveryAddress.Phone,
			Notes:  req.DeliveryAddress.Notes,
		},
	}
	if raw := strings.TrimSpace(req.ChatID); raw != "" {
		chatID, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return orders.CreateOrderInput{}, "chatId", false
		}
		in.ChatID = &chatID
	}
	return in, "", true
}

/* =========================
   READ ORDERS
========================= */

func GetOrders(svc OrderService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders"
		defer handlePanic(c, route)

		actor, ok := actorFrom(c, route)
		if !ok {
			return
		}

		page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":    err.Error(),
				"category": orders.KindValidation,
				"code":     orders.CodeInvalidInput,
			})
			return
		}

		ctx, cancel := requestContext(c, timeout)
		defer cancel()

		result, err := svc.ListOrders(ctx, actor, page, limit)
		if err != nil {
			respondEngineError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func GetOrder(svc OrderService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:id"
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

		order, err := svc.GetOrder(ctx, actor, orderID)
		if err != nil {
			respondEngineError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

/* =========================
   STATUS & PAYMENT
========================= */

func UpdateOrderStatus(svc OrderService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /orders/:id/status"
		defer handlePanic(c, route)

		actor, ok := actorFrom(c, route)
		if !ok {
			return
		}
		orderID, ok := parseObjectIDParam(c, route, "id")
		if !ok {
			return
		}

		var req updateStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		in := orders.StatusUpdate{
			OrderID:          orderID,
			Status:           models.OrderStatus(req.Status),
			TrackingNumber:   req.TrackingNumber,
			TrackingProvider: req.TrackingProvider,
			Notes:            req.Notes,
		}
		if req.ProofOfDelivery != nil {
			in.ProofOfDelivery = &orders.ProofInput{
				PhotoURL:      req.ProofOfDelivery.PhotoURL,
				OTPCode:       req.ProofOfDelivery.OTPCode,
				SignatureURL:  req.ProofOfDelivery.SignatureURL,
				DeliveryNotes: req.ProofOfDelivery.DeliveryNotes,
			}
		}

		ctx, cancel := requestContext(c, timeout)
		defer cancel()

		res, err := svc.UpdateOrderStatus(ctx, actor, in)
		if err != nil {
			respondEngineError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func ConfirmPayment(svc OrderService, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders/:id/payment"
		defer handlePanic(c, route)

		actor, ok := actorFrom(c, route)
		if !ok {
			return
		}
		orderID, ok := parseObjectIDParam(c, route, "id")
		if !ok {
			return
		}

		var req confirmPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c, timeout)
		defer cancel()

		res, err := svc.ConfirmPayment(ctx, actor, orders.PaymentInput{
			OrderID:       orderID,
			TransactionID: req.TransactionID,
			ReceiptID:     req.ReceiptID,
		})
		if err != nil {
			respondEngineError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
