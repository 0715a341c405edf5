package orders

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/audit"
	"marketplace/internal/models"
	"marketplace/internal/store"
)

type recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recorder) Dispatch(_ context.Context, events []audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) last(eventType string) (audit.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == eventType {
			return r.events[i], true
		}
	}
	return audit.Event{}, false
}

type fixture struct {
	t       *testing.T
	store   *store.Memory
	rec     *recorder
	engine  *Engine
	buyer   Actor
	seller  Actor
	admin   Actor
	product models.Product
}

func newFixture(t *testing.T, opts ...store.MemoryOption) *fixture {
	t.Helper()
	st := store.NewMemory(opts...)
	rec := &recorder{}
	f := &fixture{
		t:      t,
		store:  st,
		rec:    rec,
		engine: NewEngine(st, rec, WithReceiptIDs(func() string { return "RCPT-test" })),
		buyer:  Actor{ID: st.PutUser(models.User{Name: "Aye", Role: models.RoleBuyer}).ID, Role: models.RoleBuyer},
		seller: Actor{ID: st.PutUser(models.User{Name: "Tea House", Role: models.RoleSeller}).ID, Role: models.RoleSeller},
		admin:  Actor{ID: st.PutUser(models.User{Name: "ops", Role: models.RoleAdmin}).ID, Role: models.RoleAdmin},
	}
	f.product = f.addProduct(3, 3000)
	return f
}

func (f *fixture) addProduct(stock int, price float64) models.Product {
	return f.store.PutProduct(models.Product{
		SellerID: f.seller.ID,
		Name:     "green tea",
		Price:    price,
		Stock:    stock,
		Status:   models.ProductActive,
	})
}

func address() models.DeliveryAddress {
	return models.DeliveryAddress{Street: "1 A St", City: "Yangon", Phone: "+959000000000"}
}

func (f *fixture) input(method string, lines ...LineInput) CreateOrderInput {
	if len(lines) == 0 {
		lines = []LineInput{{ProductID: f.product.ID, Quantity: 1}}
	}
	return CreateOrderInput{
		BuyerID:         f.buyer.ID,
		SellerID:        f.seller.ID,
		Products:        lines,
		PaymentMethod:   method,
		DeliveryAddress: address(),
	}
}

func (f *fixture) createOrder(method string, lines ...LineInput) primitive.ObjectID {
	f.t.Helper()
	res, err := f.engine.CreateOrder(context.Background(), f.input(method, lines...))
	require.NoError(f.t, err)
	return res.OrderID
}

func (f *fixture) order(id primitive.ObjectID) models.Order {
	f.t.Helper()
	o, err := f.store.GetOrder(context.Background(), id)
	require.NoError(f.t, err)
	return o
}

func (f *fixture) stock(id primitive.ObjectID) int {
	f.t.Helper()
	p, ok := f.store.Product(id)
	require.True(f.t, ok)
	return p.Stock
}

func (f *fixture) update(actor Actor, id primitive.ObjectID, status models.OrderStatus, mutate ...func(*StatusUpdate)) (StatusResult, error) {
	in := StatusUpdate{OrderID: id, Status: status}
	for _, m := range mutate {
		m(&in)
	}
	return f.engine.UpdateOrderStatus(context.Background(), actor, in)
}

func (f *fixture) mustUpdate(actor Actor, id primitive.ObjectID, status models.OrderStatus, mutate ...func(*StatusUpdate)) StatusResult {
	f.t.Helper()
	res, err := f.update(actor, id, status, mutate...)
	require.NoError(f.t, err)
	return res
}

func tracking(number string) func(*StatusUpdate) {
	return func(in *StatusUpdate) { in.TrackingNumber = number }
}

func proof(p ProofInput) func(*StatusUpdate) {
	return func(in *StatusUpdate) { in.ProofOfDelivery = &p }
}

func (f *fixture) pay(id primitive.ObjectID) PaymentResult {
	f.t.Helper()
	res, err := f.engine.ConfirmPayment(context.Background(), f.buyer, PaymentInput{OrderID: id, TransactionID: "KBZ-1"})
	require.NoError(f.t, err)
	return res
}

// deliver walks a fresh order through confirmed and shipped to delivered.
func (f *fixture) deliver(id primitive.ObjectID) StatusResult {
	f.t.Helper()
	f.mustUpdate(f.seller, id, models.StatusConfirmed)
	f.mustUpdate(f.seller, id, models.StatusShipped, tracking("T1"))
	return f.mustUpdate(f.seller, id, models.StatusDelivered, proof(ProofInput{OTPCode: "1234"}))
}
