package orders

import (
	"fmt"

	"marketplace/internal/models"
	"marketplace/internal/store"
)

// Field is a part of a status update payload an actor may be allowed to set.
type Field uint8

const (
	FieldTracking Field = 1 << iota
	FieldProof
	FieldNotes

	allFields = FieldTracking | FieldProof | FieldNotes
)

// Decision is the outcome of an authorization policy.
type Decision struct {
	Allowed bool
	Reason  string
	Fields  Field
}

func allow(fields Field) Decision {
	return Decision{Allowed: true, Fields: fields}
}

func deny(format string, args ...interface{}) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

func (d Decision) Permits(f Field) bool {
	return d.Allowed && d.Fields&f == f
}

func (d Decision) err() error {
	return forbiddenf("%s", d.Reason)
}

// StatusPolicy decides whether actor may request target on order. It only
// looks at roles and ownership; whether the order's current state admits
// the transition is the state machine's call.
func StatusPolicy(actor Actor, order models.Order, target models.OrderStatus) Decision {
	switch actor.Role {
	case models.RoleAdmin:
		return allow(allFields)
	case models.RoleSeller:
		if order.SellerID != actor.ID {
			return deny("order belongs to another seller")
		}
		return allow(allFields)
	case models.RoleBuyer:
		if order.BuyerID != actor.ID {
			return deny("order belongs to another buyer")
		}
		if target != models.StatusCancelled {
			return deny("buyers may only cancel orders")
		}
		return allow(FieldNotes)
	}
	return deny("role %q may not change order status", actor.Role)
}

func PaymentPolicy(actor Actor, order models.Order) Decision {
	if order.BuyerID != actor.ID {
		return deny("only the buyer can confirm payment")
	}
	return allow(0)
}

func EscrowPolicy(actor Actor) Decision {
	if actor.Role != models.RoleAdmin {
		return deny("only admins can release escrow manually")
	}
	return allow(0)
}

func LogsPolicy(actor Actor) Decision {
	if actor.Role != models.RoleAdmin {
		return deny("only admins can read order logs")
	}
	return allow(0)
}

func ViewPolicy(actor Actor, order models.Order) Decision {
	switch {
	case actor.Role == models.RoleAdmin:
		return allow(0)
	case actor.Role == models.RoleBuyer && order.BuyerID == actor.ID:
		return allow(0)
	case actor.Role == models.RoleSeller && order.SellerID == actor.ID:
		return allow(0)
	}
	return deny("order belongs to another account")
}

// ListScope narrows an order listing to what actor may see.
func ListScope(actor Actor) (store.OrderFilter, Decision) {
	id := actor.ID
	switch actor.Role {
	case models.RoleAdmin:
		return store.OrderFilter{}, allow(0)
	case models.RoleBuyer:
		return store.OrderFilter{BuyerID: &id}, allow(0)
	case models.RoleSeller:
		return store.OrderFilter{SellerID: &id}, allow(0)
	}
	return store.OrderFilter{}, deny("role %q may not list orders", actor.Role)
}
