package orders

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/models"
	"marketplace/internal/store"
)

const (
	triggerDelivery = "delivery"
	triggerPayment  = "payment"
	triggerManual   = "manual"
)

type EscrowRelease struct {
	OrderID  primitive.ObjectID `json:"orderId"`
	Amount   float64            `json:"amount"`
	SellerID primitive.ObjectID `json:"sellerId"`
}

// releaseEscrow flips the escrow flag on o and records the release event.
// It reports false, and changes nothing, when escrow is already released.
func releaseEscrow(o *models.Order, by, trigger string, now time.Time, evs *events) bool {
	if o.EscrowReleased {
		return false
	}
	o.EscrowReleased = true
	o.EscrowReleasedAt = &now
	o.EscrowReleasedBy = by
	evs.add(o.ID, models.EventEscrowReleased, by, map[string]interface{}{
		"amount":   o.TotalAmount,
		"sellerId": o.SellerID.Hex(),
		"trigger":  trigger,
		"manual":   trigger == triggerManual,
	})
	return true
}

// ReleaseEscrow is the admin override for orders whose escrow was not
// released automatically. It does not require the order to be delivered
// and paid.
func (e *Engine) ReleaseEscrow(ctx context.Context, actor Actor, orderID primitive.ObjectID) (EscrowRelease, error) {
	if d := EscrowPolicy(actor); !d.Allowed {
		return EscrowRelease{}, d.err()
	}

	var (
		result EscrowRelease
		evs    events
	)
	err := e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		evs = nil

		order, err := txOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status.Closed() {
			return newError(KindConflict, CodeOrderClosed, "cannot release escrow for a %s order", order.Status)
		}
		if order.EscrowReleased {
			return newError(KindConflict, CodeEscrowReleased, "escrow already released")
		}

		now := e.stamp(order.UpdatedAt)
		releaseEscrow(&order, actor.ID.Hex(), triggerManual, now, &evs)
		order.UpdatedAt = now
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		result = EscrowRelease{OrderID: order.ID, Amount: order.TotalAmount, SellerID: order.SellerID}
		return nil
	})
	if err != nil {
		return EscrowRelease{}, classify(err)
	}

	e.emit(ctx, evs)
	return result, nil
}
