package orders

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/models"
	"marketplace/internal/store"
)

type PaymentInput struct {
	OrderID       primitive.ObjectID
	TransactionID string
	ReceiptID     string
}

type PaymentResult struct {
	PaymentConfirmation models.PaymentConfirmation `json:"paymentConfirmation"`
	EscrowReleased      bool                       `json:"escrowReleased"`
}

// ConfirmPayment records the buyer's payment for a prepaid order. When the
// order was delivered before the payment arrived, escrow is released in the
// same write.
func (e *Engine) ConfirmPayment(ctx context.Context, actor Actor, in PaymentInput) (PaymentResult, error) {
	transactionID := strings.TrimSpace(in.TransactionID)
	if transactionID == "" {
		return PaymentResult{}, validationf("transactionId is required")
	}
	receiptID := strings.TrimSpace(in.ReceiptID)
	if receiptID == "" {
		receiptID = e.receiptID()
	}

	order, err := e.loadOrder(ctx, in.OrderID)
	if err != nil {
		return PaymentResult{}, err
	}
	if d := PaymentPolicy(actor, order); !d.Allowed {
		return PaymentResult{}, d.err()
	}
	if order.PaymentMethod == models.PaymentCOD {
		return PaymentResult{}, codPayment()
	}

	var (
		result PaymentResult
		evs    events
	)
	err = e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		evs = nil

		current, err := txOrder(ctx, tx, in.OrderID)
		if err != nil {
			return err
		}
		switch {
		case current.PaymentMethod == models.PaymentCOD:
			return codPayment()
		case current.PaymentStatus == models.PaymentPaid:
			return newError(KindConflict, CodeAlreadyPaid, "order is already paid")
		case current.Status.Closed():
			return newError(KindConflict, CodeOrderClosed, "cannot confirm payment for a %s order", current.Status)
		}

		now := e.stamp(current.UpdatedAt)
		confirmation := models.PaymentConfirmation{
			TransactionID: transactionID,
			ReceiptID:     receiptID,
			Method:        string(current.PaymentMethod),
			ConfirmedBy:   actor.ID.Hex(),
			ConfirmedAt:   now,
		}
		current.PaymentStatus = models.PaymentPaid
		current.PaymentConfirmation = &confirmation
		current.PaidAt = &now
		current.UpdatedAt = now
		evs.add(current.ID, models.EventPaymentConfirmed, actor.ID.Hex(), map[string]interface{}{
			"transactionId": transactionID,
			"receiptId":     receiptID,
			"method":        string(current.PaymentMethod),
		})
		if current.Status == models.StatusDelivered {
			releaseEscrow(&current, models.SystemActor, triggerPayment, now, &evs)
		}

		if err := tx.UpdateOrder(ctx, current); err != nil {
			return err
		}
		result = PaymentResult{PaymentConfirmation: confirmation, EscrowReleased: current.EscrowReleased}
		return nil
	})
	if err != nil {
		return PaymentResult{}, classify(err)
	}

	e.emit(ctx, evs)
	return result, nil
}

func codPayment() *Error {
	return newError(KindConflict, CodeCODPayment, "cash on delivery orders are confirmed on delivery")
}
