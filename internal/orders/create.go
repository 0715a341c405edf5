package orders

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/models"
	"marketplace/internal/store"
)

type LineInput struct {
	ProductID primitive.ObjectID
	Quantity  int
}

type CreateOrderInput struct {
	BuyerID         primitive.ObjectID
	SellerID        primitive.ObjectID
	Products        []LineInput
	PaymentMethod   string
	DeliveryAddress models.DeliveryAddress
	ChatID          *primitive.ObjectID
}

type CreateOrderResult struct {
	OrderID     primitive.ObjectID `json:"orderId"`
	TotalAmount float64            `json:"totalAmount"`
}

type createRequest struct {
	buyerID  primitive.ObjectID
	sellerID primitive.ObjectID
	lines    []LineInput
	method   models.PaymentMethod
	address  models.DeliveryAddress
	chatID   *primitive.ObjectID
}

func validateCreate(in CreateOrderInput) (createRequest, error) {
	if in.BuyerID.IsZero() {
		return createRequest{}, validationf("buyerId is required")
	}
	if in.SellerID.IsZero() {
		return createRequest{}, validationf("sellerId is required")
	}
	method, ok := models.ParsePaymentMethod(in.PaymentMethod)
	if !ok {
		return createRequest{}, validationf("paymentMethod must be one of COD, KBZPay, WavePay, other").with("paymentMethod", in.PaymentMethod)
	}

	address := models.DeliveryAddress{
		Street: strings.TrimSpace(in.DeliveryAddress.Street),
		City:   strings.TrimSpace(in.DeliveryAddress.City),
		Phone:  strings.TrimSpace(in.DeliveryAddress.Phone),
		Notes:  strings.TrimSpace(in.DeliveryAddress.Notes),
	}
	var missing []string
	if address.Street == "" {
		missing = append(missing, "street")
	}
	if address.City == "" {
		missing = append(missing, "city")
	}
	if address.Phone == "" {
		missing = append(missing, "phone")
	}
	if len(missing) > 0 {
		return createRequest{}, validationf("deliveryAddress is missing %s", strings.Join(missing, ", ")).with("missing", missing)
	}

	if len(in.Products) == 0 {
		return createRequest{}, validationf("at least one product is required")
	}
	lines := make([]LineInput, 0, len(in.Products))
	index := make(map[primitive.ObjectID]int, len(in.Products))
	for i, line := range in.Products {
		if line.ProductID.IsZero() {
			return createRequest{}, validationf("products[%d].productId is required", i)
		}
		if line.Quantity <= 0 {
			return createRequest{}, validationf("products[%d].quantity must be greater than zero", i).with("productId", line.ProductID.Hex())
		}
		if at, seen := index[line.ProductID]; seen {
			lines[at].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(lines)
		lines = append(lines, line)
	}

	return createRequest{
		buyerID:  in.BuyerID,
		sellerID: in.SellerID,
		lines:    lines,
		method:   method,
		address:  address,
		chatID:   in.ChatID,
	}, nil
}

// CreateOrder reserves stock for every line and creates a pending order in
// one transaction. A chat, when given, is linked to the new order.
func (e *Engine) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	req, err := validateCreate(in)
	if err != nil {
		return CreateOrderResult{}, err
	}

	seller, err := e.store.GetUser(ctx, req.sellerID)
	if errors.Is(err, store.ErrNotFound) {
		return CreateOrderResult{}, newError(KindNotFound, CodeSellerNotFound, "seller not found").with("sellerId", req.sellerID.Hex())
	}
	if err != nil {
		return CreateOrderResult{}, classify(err)
	}
	if seller.Role != models.RoleSeller {
		return CreateOrderResult{}, forbiddenf("user %s is not a seller", req.sellerID.Hex())
	}
	if req.buyerID == req.sellerID {
		return CreateOrderResult{}, forbiddenf("sellers cannot order their own products")
	}
	if req.chatID != nil {
		chat, err := e.store.GetChat(ctx, *req.chatID)
		if errors.Is(err, store.ErrNotFound) {
			return CreateOrderResult{}, newError(KindNotFound, CodeChatNotFound, "chat not found").with("chatId", req.chatID.Hex())
		}
		if err != nil {
			return CreateOrderResult{}, classify(err)
		}
		if !chat.BelongsTo(req.buyerID, req.sellerID) {
			return CreateOrderResult{}, chatMismatch(*req.chatID)
		}
	}

	orderID := primitive.NewObjectID()
	var (
		total float64
		evs   events
	)
	err = e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		evs = nil

		products := make([]models.Product, len(req.lines))
		for i, line := range req.lines {
			p, err := tx.GetProduct(ctx, line.ProductID)
			if errors.Is(err, store.ErrNotFound) {
				return newError(KindNotFound, CodeProductNotFound, "product %s not found", line.ProductID.Hex()).with("productId", line.ProductID.Hex())
			}
			if err != nil {
				return err
			}
			products[i] = p
		}
		if req.chatID != nil {
			chat, err := tx.GetChat(ctx, *req.chatID)
			if err != nil {
				return err
			}
			if !chat.BelongsTo(req.buyerID, req.sellerID) {
				return chatMismatch(*req.chatID)
			}
		}

		items := make([]models.OrderItem, len(req.lines))
		sum := 0.0
		for i, line := range req.lines {
			p := products[i]
			if p.SellerID != req.sellerID {
				return newError(KindForbidden, CodeProductNotOwned, "product %s does not belong to this seller", p.ID.Hex()).with("productId", p.ID.Hex())
			}
			if p.Status != models.ProductActive {
				return newError(KindConflict, CodeProductUnavailable, "product %s is not available", p.ID.Hex()).with("productId", p.ID.Hex())
			}
			if p.Stock < line.Quantity {
				return newError(KindConflict, CodeInsufficientStock, "insufficient stock for product %s", p.ID.Hex()).
					with("productId", p.ID.Hex()).
					with("available", p.Stock).
					with("requested", line.Quantity)
			}
			price := snapshotPrice(p)
			sum += price * float64(line.Quantity)
			items[i] = models.OrderItem{
				ProductID: p.ID,
				Name:      p.Name,
				Price:     price,
				Quantity:  line.Quantity,
				ImageURL:  p.ImageURL,
			}
		}
		total = roundAmount(sum)

		for i, line := range req.lines {
			if err := tx.SetProductStock(ctx, line.ProductID, products[i].Stock-line.Quantity); err != nil {
				return err
			}
		}

		now := e.now()
		source := models.SourceDirect
		if req.chatID != nil {
			source = models.SourceChat
		}
		order := models.Order{
			ID:              orderID,
			BuyerID:         req.buyerID,
			SellerID:        req.sellerID,
			ChatID:          req.chatID,
			Products:        items,
			TotalAmount:     total,
			PaymentMethod:   req.method,
			DeliveryAddress: req.address,
			OrderSource:     source,
			Status:          models.StatusPending,
			PaymentStatus:   models.PaymentPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}

		if req.chatID != nil {
			var current *primitive.ObjectID
			if len(items) == 1 {
				current = &items[0].ProductID
			}
			if err := tx.LinkChatOrder(ctx, *req.chatID, orderID, current); err != nil {
				return err
			}
		}

		metadata := map[string]interface{}{
			"totalAmount":   total,
			"itemCount":     len(items),
			"paymentMethod": string(req.method),
			"orderSource":   source,
		}
		if req.chatID != nil {
			metadata["chatId"] = req.chatID.Hex()
		}
		evs.add(orderID, models.EventOrderCreated, req.buyerID.Hex(), metadata)
		return nil
	})
	if err != nil {
		return CreateOrderResult{}, classify(err)
	}

	e.emit(ctx, evs)
	return CreateOrderResult{OrderID: orderID, TotalAmount: total}, nil
}

func chatMismatch(chatID primitive.ObjectID) *Error {
	return newError(KindForbidden, CodeChatMismatch, "chat does not belong to this buyer and seller").with("chatId", chatID.Hex())
}
