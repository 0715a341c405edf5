// Package orders is the order lifecycle engine: order creation against
// shared stock, the status state machine, payment confirmation and escrow
// release. All shared state lives in the store; every mutation is a single
// store transaction, and audit events are emitted only after it commits.
package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/audit"
	"marketplace/internal/models"
	"marketplace/internal/store"
)

// Actor is the authenticated caller of an engine operation.
type Actor struct {
	ID   primitive.ObjectID
	Role models.Role
}

// Emitter receives the events of a committed transaction.
type Emitter interface {
	Dispatch(ctx context.Context, events []audit.Event)
}

type Engine struct {
	store     store.Store
	emitter   Emitter
	now       func() time.Time
	receiptID func() string
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithReceiptIDs(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.receiptID = gen
		}
	}
}

func NewEngine(st store.Store, emitter Emitter, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		emitter:   emitter,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		receiptID: func() string { return "RCPT-" + uuid.NewString() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// stamp returns a write time strictly after prev so updatedAt only moves
// forward even if the wall clock does not.
func (e *Engine) stamp(prev time.Time) time.Time {
	now := e.now()
	if !now.After(prev) {
		now = prev.Add(time.Millisecond)
	}
	return now
}

func (e *Engine) emit(ctx context.Context, events []audit.Event) {
	if e.emitter == nil || len(events) == 0 {
		return
	}
	e.emitter.Dispatch(ctx, events)
}

func (e *Engine) loadOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	order, err := e.store.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Order{}, newError(KindNotFound, CodeOrderNotFound, "order not found").with("orderId", id.Hex())
	}
	if err != nil {
		return models.Order{}, classify(err)
	}
	return order, nil
}

func txOrder(ctx context.Context, tx store.Tx, id primitive.ObjectID) (models.Order, error) {
	order, err := tx.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Order{}, newError(KindNotFound, CodeOrderNotFound, "order not found").with("orderId", id.Hex())
	}
	return order, err
}

// events collects the audit events of one transaction attempt.
type events []audit.Event

func (ev *events) add(orderID primitive.ObjectID, eventType, actorID string, metadata map[string]interface{}) {
	*ev = append(*ev, audit.Event{OrderID: orderID, Type: eventType, ActorID: actorID, Metadata: metadata})
}
