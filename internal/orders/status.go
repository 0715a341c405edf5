package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/models"
	"marketplace/internal/store"
)

type ProofInput struct {
	PhotoURL      string
	OTPCode       string
	SignatureURL  string
	DeliveryNotes string
}

func (p ProofInput) trimmed() ProofInput {
	return ProofInput{
		PhotoURL:      strings.TrimSpace(p.PhotoURL),
		OTPCode:       strings.TrimSpace(p.OTPCode),
		SignatureURL:  strings.TrimSpace(p.SignatureURL),
		DeliveryNotes: strings.TrimSpace(p.DeliveryNotes),
	}
}

func (p ProofInput) proof() models.ProofOfDelivery {
	return models.ProofOfDelivery{
		PhotoURL:      p.PhotoURL,
		OTPCode:       p.OTPCode,
		SignatureURL:  p.SignatureURL,
		DeliveryNotes: p.DeliveryNotes,
	}
}

type StatusUpdate struct {
	OrderID          primitive.ObjectID
	Status           models.OrderStatus
	TrackingNumber   string
	TrackingProvider string
	ProofOfDelivery  *ProofInput
	Notes            string
}

type StatusResult struct {
	OrderID        primitive.ObjectID   `json:"orderId"`
	FinalStatus    models.OrderStatus   `json:"finalStatus"`
	PaymentStatus  models.PaymentStatus `json:"paymentStatus"`
	EscrowReleased bool                 `json:"escrowReleased"`
}

// transitions lists, per requested status, the current statuses it may be
// applied to. refunded is never requested directly.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusConfirmed: {models.StatusPending, models.StatusConfirmed},
	models.StatusShipped:   {models.StatusPending, models.StatusConfirmed, models.StatusShipped},
	models.StatusDelivered: {models.StatusShipped},
	models.StatusCancelled: {models.StatusPending, models.StatusConfirmed},
}

func canTransition(current, target models.OrderStatus) bool {
	for _, from := range transitions[target] {
		if from == current {
			return true
		}
	}
	return false
}

func transitionError(current, target models.OrderStatus) *Error {
	var err *Error
	switch {
	case target == models.StatusCancelled && current.Closed():
		err = newError(KindConflict, CodeInvalidTransition, "order is already %s", current)
	case target == models.StatusCancelled:
		err = newError(KindConflict, CodeInvalidTransition, "cannot cancel a %s order", current)
	case current == target:
		err = newError(KindConflict, CodeInvalidTransition, "order is already %s", current)
	case current.Closed():
		err = newError(KindConflict, CodeInvalidTransition, "cannot change a %s order", current)
	default:
		err = newError(KindConflict, CodeInvalidTransition, "cannot move a %s order to %s", current, target)
	}
	return err.with("currentStatus", string(current)).with("requestedStatus", string(target))
}

func normalizeStatusUpdate(in StatusUpdate) (StatusUpdate, error) {
	in.Status = models.OrderStatus(strings.ToLower(strings.TrimSpace(string(in.Status))))
	in.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
	in.TrackingProvider = strings.TrimSpace(in.TrackingProvider)
	in.Notes = strings.TrimSpace(in.Notes)
	if in.ProofOfDelivery != nil {
		p := in.ProofOfDelivery.trimmed()
		in.ProofOfDelivery = &p
	}

	switch in.Status {
	case "":
		return in, validationf("status is required")
	case models.StatusRefunded:
		return in, newError(KindConflict, CodeRefundNotDirect, "refunded cannot be requested directly, cancel a paid order instead")
	case models.StatusPending:
		return in, validationf("orders cannot be moved back to pending")
	}
	if !in.Status.Valid() {
		return in, validationf("unknown status %q", in.Status).with("status", string(in.Status))
	}

	switch in.Status {
	case models.StatusShipped:
		if in.TrackingNumber == "" {
			return in, newError(KindValidation, CodeTrackingRequired, "tracking number required")
		}
	case models.StatusDelivered:
		if in.ProofOfDelivery == nil || in.ProofOfDelivery.proof().Empty() {
			return in, newError(KindValidation, CodeProofRequired, "proof of delivery required: photo, OTP, signature or notes")
		}
	}
	return in, nil
}

// checkPayload rejects fields the decision does not let the actor set.
func (d Decision) checkPayload(in StatusUpdate) error {
	if (in.TrackingNumber != "" || in.TrackingProvider != "") && !d.Permits(FieldTracking) {
		return forbiddenf("tracking details can only be set by the seller or an admin")
	}
	if in.ProofOfDelivery != nil && !d.Permits(FieldProof) {
		return forbiddenf("proof of delivery can only be submitted by the seller or an admin")
	}
	if in.Notes != "" && !d.Permits(FieldNotes) {
		return forbiddenf("notes are not allowed for this actor")
	}
	return nil
}

// UpdateOrderStatus applies one state machine transition. The returned
// FinalStatus is refunded when a paid order is cancelled.
func (e *Engine) UpdateOrderStatus(ctx context.Context, actor Actor, in StatusUpdate) (StatusResult, error) {
	in, err := normalizeStatusUpdate(in)
	if err != nil {
		return StatusResult{}, err
	}
	target := in.Status

	order, err := e.loadOrder(ctx, in.OrderID)
	if err != nil {
		return StatusResult{}, err
	}
	decision := StatusPolicy(actor, order, target)
	if !decision.Allowed {
		return StatusResult{}, decision.err()
	}
	if err := decision.checkPayload(in); err != nil {
		return StatusResult{}, err
	}
	if target == models.StatusDelivered && order.PaymentMethod == models.PaymentCOD && !in.ProofOfDelivery.proof().HasEvidence() {
		return StatusResult{}, newError(KindValidation, CodeProofRequired, "cash on delivery orders need an OTP, photo or signature as proof of delivery")
	}

	var (
		result StatusResult
		evs    events
	)
	err = e.store.RunTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		evs = nil

		current, err := txOrder(ctx, tx, in.OrderID)
		if err != nil {
			return err
		}
		if !canTransition(current.Status, target) {
			return transitionError(current.Status, target)
		}

		var restock map[primitive.ObjectID]models.Product
		if target == models.StatusCancelled {
			if current.EscrowReleased {
				return newError(KindConflict, CodeEscrowReleased, "cannot cancel an order whose escrow was released")
			}
			if restock, err = readLineProducts(ctx, tx, current); err != nil {
				return err
			}
		}

		from := current.Status
		now := e.stamp(current.UpdatedAt)
		var specific events
		changed := true
		switch target {
		case models.StatusConfirmed:
			changed = current.Status != models.StatusConfirmed
			current.Status = models.StatusConfirmed
		case models.StatusShipped:
			changed = applyShipped(&current, in, now, actor, &specific)
		case models.StatusDelivered:
			applyDelivered(&current, in, now, actor, &specific)
		case models.StatusCancelled:
			applyCancelled(&current, in, now, actor, &specific)
		}

		if changed {
			current.UpdatedAt = now
			for id, qty := range lineQuantities(current) {
				p, ok := restock[id]
				if !ok {
					continue
				}
				if err := tx.SetProductStock(ctx, id, p.Stock+qty); err != nil {
					return err
				}
			}
			if err := tx.UpdateOrder(ctx, current); err != nil {
				return err
			}
		}

		metadata := map[string]interface{}{
			"from":      string(from),
			"to":        string(current.Status),
			"requested": string(target),
			"role":      string(actor.Role),
			"changed":   changed,
		}
		if in.Notes != "" {
			metadata["notes"] = in.Notes
		}
		evs.add(current.ID, models.EventStatusUpdated, actor.ID.Hex(), metadata)
		evs = append(evs, specific...)

		result = StatusResult{
			OrderID:        current.ID,
			FinalStatus:    current.Status,
			PaymentStatus:  current.PaymentStatus,
			EscrowReleased: current.EscrowReleased,
		}
		return nil
	})
	if err != nil {
		return StatusResult{}, classify(err)
	}

	e.emit(ctx, evs)
	return result, nil
}

// applyShipped sets or corrects tracking. It reports false when an already
// shipped order is re-requested with identical tracking details.
func applyShipped(o *models.Order, in StatusUpdate, now time.Time, actor Actor, evs *events) bool {
	provider := in.TrackingProvider
	if provider == "" {
		provider = models.DefaultTrackingProvider
		if o.Status == models.StatusShipped && o.TrackingProvider != "" {
			provider = o.TrackingProvider
		}
	}
	if o.Status == models.StatusShipped && o.TrackingNumber == in.TrackingNumber && o.TrackingProvider == provider {
		return false
	}

	metadata := map[string]interface{}{
		"trackingNumber":   in.TrackingNumber,
		"trackingProvider": provider,
	}
	if o.TrackingNumber != "" {
		metadata["previousTrackingNumber"] = o.TrackingNumber
	}
	o.TrackingNumber = in.TrackingNumber
	o.TrackingProvider = provider
	if o.ShippedAt == nil {
		o.ShippedAt = &now
	}
	o.Status = models.StatusShipped
	evs.add(o.ID, models.EventTrackingNumberAdded, actor.ID.Hex(), metadata)
	return true
}

func applyDelivered(o *models.Order, in StatusUpdate, now time.Time, actor Actor, evs *events) {
	pod := in.ProofOfDelivery.proof()
	pod.ConfirmedBy = actor.ID.Hex()
	pod.ConfirmedAt = now
	o.ProofOfDelivery = &pod
	o.DeliveredAt = &now
	o.Status = models.StatusDelivered
	evs.add(o.ID, models.EventDeliveryProofSubmitted, actor.ID.Hex(), map[string]interface{}{
		"hasPhoto":     pod.PhotoURL != "",
		"hasOtp":       pod.OTPCode != "",
		"hasSignature": pod.SignatureURL != "",
		"hasNotes":     pod.DeliveryNotes != "",
	})

	if o.PaymentMethod == models.PaymentCOD && o.PaymentStatus == models.PaymentPending {
		o.PaymentStatus = models.PaymentPaid
		o.PaidAt = &now
		evs.add(o.ID, models.EventPaymentConfirmed, actor.ID.Hex(), map[string]interface{}{
			"method":              string(models.PaymentCOD),
			"collectedOnDelivery": true,
		})
	}
	if o.PaymentStatus == models.PaymentPaid {
		releaseEscrow(o, models.SystemActor, triggerDelivery, now, evs)
	}
}

func applyCancelled(o *models.Order, in StatusUpdate, now time.Time, actor Actor, evs *events) {
	o.CancelledAt = &now
	o.CancellationReason = in.Notes
	if o.PaymentStatus != models.PaymentPaid {
		o.Status = models.StatusCancelled
		return
	}
	o.Status = models.StatusRefunded
	o.PaymentStatus = models.PaymentRefunded
	o.RefundedAt = &now
	o.RefundedBy = actor.ID.Hex()
	evs.add(o.ID, models.EventOrderRefunded, actor.ID.Hex(), map[string]interface{}{
		"amount":          o.TotalAmount,
		"paymentMethod":   string(o.PaymentMethod),
		"requestedStatus": string(models.StatusCancelled),
	})
}

// readLineProducts reads every product on the order so its stock can be
// restored. A product that no longer exists aborts the transaction.
func readLineProducts(ctx context.Context, tx store.Tx, o models.Order) (map[primitive.ObjectID]models.Product, error) {
	products := make(map[primitive.ObjectID]models.Product, len(o.Products))
	for _, item := range o.Products {
		if _, seen := products[item.ProductID]; seen {
			continue
		}
		p, err := tx.GetProduct(ctx, item.ProductID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindTransactionFailure, CodeReferenceDisappeared, "product %s no longer exists, stock cannot be restored", item.ProductID.Hex()).
				with("productId", item.ProductID.Hex())
		}
		if err != nil {
			return nil, err
		}
		products[item.ProductID] = p
	}
	return products, nil
}

func lineQuantities(o models.Order) map[primitive.ObjectID]int {
	qty := make(map[primitive.ObjectID]int, len(o.Products))
	for _, item := range o.Products {
		qty[item.ProductID] += item.Quantity
	}
	return qty
}
