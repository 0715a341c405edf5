// Package audit writes order lifecycle events to one or more sinks after the
// triggering transaction has committed. Nothing here can fail the operation
// being audited: sink errors and panics are logged and dropped.
package audit

import (
	"context"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/models"
)

// Event is a domain event produced by a committed transaction.
type Event struct {
	OrderID  primitive.ObjectID
	Type     string
	ActorID  string
	Metadata map[string]interface{}
}

type Sink interface {
	Write(ctx context.Context, entry models.OrderLog) error
}

type SinkFunc func(ctx context.Context, entry models.OrderLog) error

func (f SinkFunc) Write(ctx context.Context, entry models.OrderLog) error {
	return f(ctx, entry)
}

// LogStore is the part of the document store the audit trail appends to.
type LogStore interface {
	AppendLog(ctx context.Context, entry models.OrderLog) error
}

func StoreSink(s LogStore) Sink {
	return SinkFunc(s.AppendLog)
}

type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	now     func() time.Time
}

type Option func(*Dispatcher)

func WithTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(disp *Dispatcher) {
		if now != nil {
			disp.now = now
		}
	}
}

func NewDispatcher(sinks []Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sinks:   sinks,
		timeout: 3 * time.Second,
		now:     func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch stamps each event and hands the batch to every sink. Sinks run
// side by side and each write gets its own timeout, so a slow sink cannot
// starve the others. The caller's cancellation does not stop the writes.
func (d *Dispatcher) Dispatch(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}

	entries := make([]models.OrderLog, 0, len(events))
	for _, ev := range events {
		ts := d.now()
		entries = append(entries, models.OrderLog{
			ID:        primitive.NewObjectID(),
			OrderID:   ev.OrderID,
			EventType: ev.Type,
			ActorID:   ev.ActorID,
			Metadata:  ev.Metadata,
			Timestamp: &ts,
		})
	}

	base := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
	for _, sink := range d.sinks {
		wg.Add(1)
		go func(sink Sink) {
			defer wg.Done()
			for _, entry := range entries {
				d.write(base, sink, entry)
			}
		}(sink)
	}
	wg.Wait()
}

func (d *Dispatcher) write(base context.Context, sink Sink, entry models.OrderLog) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[AUDIT] [ERROR] sink panic for %s on order %s: %v", entry.EventType, entry.OrderID.Hex(), r)
		}
	}()

	ctx, cancel := context.WithTimeout(base, d.timeout)
	defer cancel()

	if err := sink.Write(ctx, entry); err != nil {
		log.Printf("[AUDIT] [ERROR] %s for order %s not recorded: %v", entry.EventType, entry.OrderID.Hex(), err)
	}
}
