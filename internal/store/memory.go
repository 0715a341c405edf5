package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/models"
)

const (
	collProducts = "products"
	collOrders   = "orders"
	collChats    = "chats"
)

var errStale = errors.New("stale read")

type docKey struct {
	coll string
	id   primitive.ObjectID
}

// Memory is an in-process Store with optimistic concurrency control. A
// transaction records the version of every document it reads and the commit
// fails if any of those versions moved. Failed commits are retried with a
// fresh snapshot up to the attempt budget.
type Memory struct {
	mu       sync.RWMutex
	products map[primitive.ObjectID]models.Product
	orders   map[primitive.ObjectID]models.Order
	chats    map[primitive.ObjectID]models.Chat
	users    map[primitive.ObjectID]models.User
	logs     []models.OrderLog

	maxAttempts int
	now         func() time.Time
}

type MemoryOption func(*Memory)

// WithMaxAttempts bounds how many times a conflicting transaction is retried.
func WithMaxAttempts(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		products:    make(map[primitive.ObjectID]models.Product),
		orders:      make(map[primitive.ObjectID]models.Order),
		chats:       make(map[primitive.ObjectID]models.Chat),
		users:       make(map[primitive.ObjectID]models.User),
		maxAttempts: 5,
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) RunTransaction(ctx context.Context, fn TxFunc) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := &memTx{m: m, reads: make(map[docKey]int64), cache: make(map[docKey]interface{})}
		if err := fn(ctx, tx); err != nil {
			return err
		}

		err := m.commit(tx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errStale) {
			return err
		}
		if attempt >= m.maxAttempts {
			return fmt.Errorf("transaction aborted after %d attempts: %w", attempt, ErrConflict)
		}
	}
}

func (m *Memory) commit(tx *memTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, version := range tx.reads {
		if m.versionLocked(key) != version {
			return fmt.Errorf("%s/%s: %w", key.coll, key.id.Hex(), errStale)
		}
	}
	for _, key := range tx.creates {
		if m.versionLocked(key) >= 0 {
			return fmt.Errorf("%s/%s: %w", key.coll, key.id.Hex(), errStale)
		}
	}
	for _, op := range tx.ops {
		op()
	}
	return nil
}

// versionLocked returns -1 for documents that do not exist.
func (m *Memory) versionLocked(key docKey) int64 {
	switch key.coll {
	case collProducts:
		if p, ok := m.products[key.id]; ok {
			return p.Version
		}
	case collOrders:
		if o, ok := m.orders[key.id]; ok {
			return o.Version
		}
	case collChats:
		if c, ok := m.chats[key.id]; ok {
			return c.Version
		}
	}
	return -1
}

func (m *Memory) GetUser(_ context.Context, id primitive.ObjectID) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) GetOrder(_ context.Context, id primitive.ObjectID) (models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return models.Order{}, ErrNotFound
	}
	return o.Clone(), nil
}

func (m *Memory) GetChat(_ context.Context, id primitive.ObjectID) (models.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.chats[id]
	if !ok {
		return models.Chat{}, ErrNotFound
	}
	return cloneChat(c), nil
}

func (m *Memory) ListOrders(_ context.Context, filter OrderFilter, page, limit int64) ([]models.Order, int64, error) {
	m.mu.RLock()
	matched := make([]models.Order, 0)
	for _, o := range m.orders {
		if filter.BuyerID != nil && o.BuyerID != *filter.BuyerID {
			continue
		}
		if filter.SellerID != nil && o.SellerID != *filter.SellerID {
			continue
		}
		matched = append(matched, o.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID.Hex() > matched[j].ID.Hex()
	})

	total := int64(len(matched))
	start, ok := pageOffset(page, limit)
	if !ok || start >= total {
		return []models.Order{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *Memory) AppendLog(_ context.Context, entry models.OrderLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	m.logs = append(m.logs, entry)
	return nil
}

func (m *Memory) ListLogs(_ context.Context, orderID primitive.ObjectID) ([]models.OrderLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	logs := make([]models.OrderLog, 0)
	for _, entry := range m.logs {
		if entry.OrderID == orderID {
			logs = append(logs, entry)
		}
	}
	return logs, nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

// PutUser, PutProduct, PutChat and PutOrder write documents directly,
// outside any transaction. Each call bumps the document version.

func (m *Memory) PutUser(u models.User) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	m.users[u.ID] = u
	return u
}

func (m *Memory) PutProduct(p models.Product) models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	now := m.now()
	if existing, ok := m.products[p.ID]; ok {
		p.Version = existing.Version + 1
		p.CreatedAt = existing.CreatedAt
	} else {
		p.Version = 1
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	m.products[p.ID] = p
	return p
}

func (m *Memory) PutChat(c models.Chat) models.Chat {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if existing, ok := m.chats[c.ID]; ok {
		c.Version = existing.Version + 1
	} else {
		c.Version = 1
	}
	c.UpdatedAt = m.now()
	m.chats[c.ID] = cloneChat(c)
	return c
}

func (m *Memory) PutOrder(o models.Order) models.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	if existing, ok := m.orders[o.ID]; ok {
		o.Version = existing.Version + 1
	} else {
		o.Version = 1
	}
	m.orders[o.ID] = o.Clone()
	return o
}

func (m *Memory) DeleteProduct(id primitive.ObjectID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
}

// Product returns the committed product, for inspection.
func (m *Memory) Product(id primitive.ObjectID) (models.Product, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	return p, ok
}

type memTx struct {
	m       *Memory
	reads   map[docKey]int64
	cache   map[docKey]interface{}
	creates []docKey
	ops     []func()
}

func (tx *memTx) read(key docKey, load func() (interface{}, int64, bool)) (interface{}, error) {
	if len(tx.ops) > 0 {
		return nil, ErrReadAfterWrite
	}
	if cached, ok := tx.cache[key]; ok {
		if cached == nil {
			return nil, ErrNotFound
		}
		return cached, nil
	}

	tx.m.mu.RLock()
	doc, version, ok := load()
	tx.m.mu.RUnlock()

	tx.reads[key] = version
	if !ok {
		tx.cache[key] = nil
		return nil, ErrNotFound
	}
	tx.cache[key] = doc
	return doc, nil
}

func (tx *memTx) GetProduct(_ context.Context, id primitive.ObjectID) (models.Product, error) {
	doc, err := tx.read(docKey{collProducts, id}, func() (interface{}, int64, bool) {
		p, ok := tx.m.products[id]
		if !ok {
			return nil, -1, false
		}
		return p, p.Version, true
	})
	if err != nil {
		return models.Product{}, fmt.Errorf("product %s: %w", id.Hex(), err)
	}
	return doc.(models.Product), nil
}

func (tx *memTx) GetOrder(_ context.Context, id primitive.ObjectID) (models.Order, error) {
	doc, err := tx.read(docKey{collOrders, id}, func() (interface{}, int64, bool) {
		o, ok := tx.m.orders[id]
		if !ok {
			return nil, -1, false
		}
		return o.Clone(), o.Version, true
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("order %s: %w", id.Hex(), err)
	}
	return doc.(models.Order).Clone(), nil
}

func (tx *memTx) GetChat(_ context.Context, id primitive.ObjectID) (models.Chat, error) {
	doc, err := tx.read(docKey{collChats, id}, func() (interface{}, int64, bool) {
		c, ok := tx.m.chats[id]
		if !ok {
			return nil, -1, false
		}
		return cloneChat(c), c.Version, true
	})
	if err != nil {
		return models.Chat{}, fmt.Errorf("chat %s: %w", id.Hex(), err)
	}
	return cloneChat(doc.(models.Chat)), nil
}

func (tx *memTx) mustHaveRead(key docKey) error {
	if version, ok := tx.reads[key]; !ok || version < 0 {
		return fmt.Errorf("%s/%s: %w", key.coll, key.id.Hex(), ErrUnreadWrite)
	}
	return nil
}

func (tx *memTx) SetProductStock(_ context.Context, id primitive.ObjectID, stock int) error {
	if err := tx.mustHaveRead(docKey{collProducts, id}); err != nil {
		return err
	}
	m := tx.m
	tx.ops = append(tx.ops, func() {
		p := m.products[id]
		p.Stock = stock
		p.Version++
		p.UpdatedAt = m.now()
		m.products[id] = p
	})
	return nil
}

func (tx *memTx) CreateOrder(_ context.Context, order models.Order) error {
	if order.ID.IsZero() {
		return errors.New("order id is required")
	}
	key := docKey{collOrders, order.ID}
	tx.creates = append(tx.creates, key)
	staged := order.Clone()
	staged.Version = 1
	m := tx.m
	tx.ops = append(tx.ops, func() {
		m.orders[staged.ID] = staged
	})
	return nil
}

func (tx *memTx) UpdateOrder(_ context.Context, order models.Order) error {
	if err := tx.mustHaveRead(docKey{collOrders, order.ID}); err != nil {
		return err
	}
	staged := order.Clone()
	m := tx.m
	tx.ops = append(tx.ops, func() {
		staged.Version = m.orders[staged.ID].Version + 1
		m.orders[staged.ID] = staged
	})
	return nil
}

func (tx *memTx) LinkChatOrder(_ context.Context, chatID, orderID primitive.ObjectID, currentProductID *primitive.ObjectID) error {
	if err := tx.mustHaveRead(docKey{collChats, chatID}); err != nil {
		return err
	}
	m := tx.m
	tx.ops = append(tx.ops, func() {
		c := m.chats[chatID]
		c.OrderID = &orderID
		if currentProductID != nil {
			pid := *currentProductID
			c.CurrentProductID = &pid
		}
		c.Version++
		c.UpdatedAt = m.now()
		m.chats[chatID] = c
	})
	return nil
}

func cloneChat(c models.Chat) models.Chat {
	if c.CurrentProductID != nil {
		v := *c.CurrentProductID
		c.CurrentProductID = &v
	}
	if c.OrderID != nil {
		v := *c.OrderID
		c.OrderID = &v
	}
	return c
}
