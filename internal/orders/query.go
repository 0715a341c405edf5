package orders

import (
	"context"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/models"
)

const (
	DefaultPageLimit int64 = 20
	MaxPageLimit     int64 = 100
)

// MaxPage keeps (page-1)*limit inside int64 for every accepted limit.
const MaxPage = math.MaxInt64 / MaxPageLimit

type LogEntry struct {
	LogID     primitive.ObjectID     `json:"logId"`
	EventType string                 `json:"eventType"`
	ActorID   string                 `json:"actorId"`
	Timestamp *time.Time             `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

type OrderPage struct {
	Orders []models.Order `json:"orders"`
	Total  int64          `json:"total"`
	Page   int64          `json:"page"`
	Limit  int64          `json:"limit"`
}

// GetOrderLogs returns the audit trail of an order, oldest first.
func (e *Engine) GetOrderLogs(ctx context.Context, actor Actor, orderID primitive.ObjectID) ([]LogEntry, error) {
	if d := LogsPolicy(actor); !d.Allowed {
		return nil, d.err()
	}
	logs, err := e.store.ListLogs(ctx, orderID)
	if err != nil {
		return nil, classify(err)
	}
	models.SortLogs(logs)

	entries := make([]LogEntry, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, LogEntry{
			LogID:     l.ID,
			EventType: l.EventType,
			ActorID:   l.ActorID,
			Timestamp: l.Timestamp,
			Metadata:  l.Metadata,
		})
	}
	return entries, nil
}

func (e *Engine) GetOrder(ctx context.Context, actor Actor, orderID primitive.ObjectID) (models.Order, error) {
	order, err := e.loadOrder(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if d := ViewPolicy(actor, order); !d.Allowed {
		return models.Order{}, d.err()
	}
	return order, nil
}

// ListOrders pages through the orders visible to actor, newest first.
func (e *Engine) ListOrders(ctx context.Context, actor Actor, page, limit int64) (OrderPage, error) {
	if page < 1 || page > MaxPage {
		return OrderPage{}, validationf("page must be between 1 and %d", MaxPage)
	}
	if limit < 1 || limit > MaxPageLimit {
		return OrderPage{}, validationf("limit must be between 1 and %d", MaxPageLimit)
	}
	filter, d := ListScope(actor)
	if !d.Allowed {
		return OrderPage{}, d.err()
	}

	list, total, err := e.store.ListOrders(ctx, filter, page, limit)
	if err != nil {
		return OrderPage{}, classify(err)
	}
	if list == nil {
		list = []models.Order{}
	}
	return OrderPage{Orders: list, Total: total, Page: page, Limit: limit}, nil
}
