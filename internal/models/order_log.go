package models

import (
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	EventOrderCreated           = "order_created"
	EventStatusUpdated          = "status_updated"
	EventTrackingNumberAdded    = "tracking_number_added"
	EventDeliveryProofSubmitted = "delivery_proof_submitted"
	EventPaymentConfirmed       = "payment_confirmed"
	EventOrderRefunded          = "order_refunded"
	EventEscrowReleased         = "escrow_released"
)

// OrderLog is an append-only audit record. Nothing in the engine reads it
// back to make a decision.
type OrderLog struct {
	ID        primitive.ObjectID     `bson:"_id,omitempty" json:"logId"`
	OrderID   primitive.ObjectID     `bson:"orderId" json:"orderId"`
	EventType string                 `bson:"eventType" json:"eventType"`
	ActorID   string                 `bson:"actorId" json:"actorId"`
	Metadata  map[string]interface{} `bson:"metadata,omitempty" json:"metadata,omitempty"`
	Timestamp *time.Time             `bson:"timestamp" json:"timestamp"`
}

// SortLogs orders entries by ascending timestamp. Entries without a
// timestamp go last; ties keep ObjectID order.
func SortLogs(logs []OrderLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		a, b := logs[i].Timestamp, logs[j].Timestamp
		switch {
		case a == nil && b == nil:
			return logs[i].ID.Hex() < logs[j].ID.Hex()
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.Before(*b)
		}
		return logs[i].ID.Hex() < logs[j].ID.Hex()
	})
}
