// Package store is the transactional document store behind the order engine.
//
// A transaction reads a consistent snapshot of every document it touches and
// stages its writes; writes are applied only when the callback returns nil.
// Every read must precede every write. Documents read in a transaction are
// version checked at commit, and the commit is rejected if any of them changed
// in the meantime.
package store

import (
	"context"
	"errors"
	"math"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/models"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrConflict means a document read by the transaction was modified by
	// another writer before commit and the retry budget is spent.
	ErrConflict       = errors.New("write conflict")
	ErrReadAfterWrite = errors.New("read after write in transaction")
	ErrUnreadWrite    = errors.New("write to a document not read in transaction")
)

// Tx is the view a transaction callback gets. Write methods only stage
// changes.
type Tx interface {
	GetProduct(ctx context.Context, id primitive.ObjectID) (models.Product, error)
	GetOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	GetChat(ctx context.Context, id primitive.ObjectID) (models.Chat, error)

	SetProductStock(ctx context.Context, id primitive.ObjectID, stock int) error
	CreateOrder(ctx context.Context, order models.Order) error
	UpdateOrder(ctx context.Context, order models.Order) error
	LinkChatOrder(ctx context.Context, chatID, orderID primitive.ObjectID, currentProductID *primitive.ObjectID) error
}

// TxFunc may be invoked more than once when the store retries a conflicting
// transaction, so it must not leak state between attempts.
type TxFunc func(ctx context.Context, tx Tx) error

type OrderFilter struct {
	BuyerID  *primitive.ObjectID
	SellerID *primitive.ObjectID
}

type Store interface {
	RunTransaction(ctx context.Context, fn TxFunc) error

	GetUser(ctx context.Context, id primitive.ObjectID) (models.User, error)
	GetOrder(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	GetChat(ctx context.Context, id primitive.ObjectID) (models.Chat, error)
	ListOrders(ctx context.Context, filter OrderFilter, page, limit int64) ([]models.Order, int64, error)

	AppendLog(ctx context.Context, entry models.OrderLog) error
	ListLogs(ctx context.Context, orderID primitive.ObjectID) ([]models.OrderLog, error)

	Ping(ctx context.Context) error
}

// pageOffset returns the number of records before the given page. It reports
// false when the page lies past any offset an int64 can express.
func pageOffset(page, limit int64) (int64, bool) {
	if page < 1 || limit < 1 || page-1 > (math.MaxInt64-limit)/limit {
		return 0, false
	}
	return (page - 1) * limit, true
}
