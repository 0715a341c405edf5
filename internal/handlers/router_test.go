package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/audit"
	"marketplace/internal/identity"
	"marketplace/internal/models"
	"marketplace/internal/orders"
	"marketplace/internal/store"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type testServer struct {
	t        *testing.T
	router   *gin.Engine
	store    *store.Memory
	verifier *identity.Verifier
	buyer    primitive.ObjectID
	seller   primitive.ObjectID
	admin    primitive.ObjectID
	product  models.Product
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemory()
	engine := orders.NewEngine(st, audit.NewDispatcher([]audit.Sink{audit.StoreSink(st)}))
	verifier := identity.NewVerifier("test-secret")

	s := &testServer{
		t:        t,
		router:   NewRouter(engine, verifier, st, time.Second),
		store:    st,
		verifier: verifier,
		buyer:    st.PutUser(models.User{Role: models.RoleBuyer}).ID,
		seller:   st.PutUser(models.User{Role: models.RoleSeller}).ID,
		admin:    st.PutUser(models.User{Role: models.RoleAdmin}).ID,
	}
	s.product = st.PutProduct(models.Product{SellerID: s.seller, Name: "green tea", Price: 3000, Stock: 3, Status: models.ProductActive})
	return s
}

func (s *testServer) token(id primitive.ObjectID, role models.Role) string {
	s.t.Helper()
	tok, err := s.verifier.Issue(identity.Principal{UserID: id, Role: role}, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	out := map[string]interface{}{}
	if rec.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func (s *testServer) createOrder(method string) string {
	s.t.Helper()
	rec, body := s.do(http.MethodPost, "/orders", s.token(s.buyer, models.RoleBuyer), gin.H{
		"sellerId":        s.seller.Hex(),
		"products":        []gin.H{{"productId": s.product.ID.Hex(), "quantity": 1}},
		"paymentMethod":   method,
		"deliveryAddress": gin.H{"street": "1 A St", "city": "Yangon", "phone": "+959000000000"},
	})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return body["orderId"].(string)
}

func TestCreateOrderEndpoint(t *testing.T) {
	s := newTestServer(t)
	id := s.createOrder("cod")

	p, _ := s.store.Product(s.product.ID)
	assert.Equal(t, 2, p.Stock)

	rec, body := s.do(http.MethodGet, "/orders/"+id, s.token(s.seller, models.RoleSeller), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "COD", body["paymentMethod"])
	assert.NotContains(t, body, "version")
}

func TestCreateOrderEndpointValidation(t *testing.T) {
	s := newTestServer(t)
	tok := s.token(s.buyer, models.RoleBuyer)

	rec, body := s.do(http.MethodPost, "/orders", tok, gin.H{
		"sellerId":      s.seller.Hex(),
		"products":      []gin.H{},
		"paymentMethod": "COD",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation failed", body["error"])
	assert.Equal(t, string(orders.KindValidation), body["category"])
	assert.NotEmpty(t, body["details"])

	rec, body = s.do(http.MethodPost, "/orders", tok, gin.H{
		"sellerId":        "not-an-id",
		"products":        []gin.H{{"productId": s.product.ID.Hex(), "quantity": 1}},
		"paymentMethod":   "COD",
		"deliveryAddress": gin.H{"street": "1 A St", "city": "Yangon", "phone": "1"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid sellerId", body["error"])

	rec, body = s.do(http.MethodPost, "/orders", tok, gin.H{
		"sellerId":        s.seller.Hex(),
		"products":        []gin.H{{"productId": s.product.ID.Hex(), "quantity": 9}},
		"paymentMethod":   "COD",
		"deliveryAddress": gin.H{"street": "1 A St", "city": "Yangon", "phone": "1"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, orders.CodeInsufficientStock, body["code"])
	details, ok := body["details"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 3, details["available"])
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	id := s.createOrder("COD")
	seller := s.token(s.seller, models.RoleSeller)

	rec, body := s.do(http.MethodPatch, "/orders/"+id+"/status", seller, gin.H{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, orders.CodeTrackingRequired, body["code"])

	rec, _ = s.do(http.MethodPatch, "/orders/"+id+"/status", seller, gin.H{"status": "shipped", "trackingNumber": "T1"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = s.do(http.MethodPatch, "/orders/"+id+"/status", s.token(s.buyer, models.RoleBuyer), gin.H{"status": "cancelled"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "cannot cancel a shipped order", body["error"])

	rec, body = s.do(http.MethodPatch, "/orders/"+id+"/status", seller, gin.H{
		"status":          "delivered",
		"proofOfDelivery": gin.H{"otpCode": "1234"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "delivered", body["finalStatus"])
	assert.Equal(t, "paid", body["paymentStatus"])
	assert.Equal(t, true, body["escrowReleased"])

	admin := s.token(s.admin, models.RoleAdmin)
	rec, body = s.do(http.MethodPost, "/admin/api/orders/"+id+"/escrow/release", admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, orders.CodeEscrowReleased, body["code"])

	rec, body = s.do(http.MethodGet, "/admin/api/orders/"+id+"/logs", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs, ok := body["logs"].([]interface{})
	require.True(t, ok)
	first := logs[0].(map[string]interface{})
	assert.Equal(t, models.EventOrderCreated, first["eventType"])
	assert.NotEmpty(t, first["logId"])
	last := logs[len(logs)-1].(map[string]interface{})
	assert.Equal(t, models.EventEscrowReleased, last["eventType"])
}

func TestPaymentEndpoint(t *testing.T) {
	s := newTestServer(t)
	id := s.createOrder("KBZPay")
	buyer := s.token(s.buyer, models.RoleBuyer)

	rec, body := s.do(http.MethodPost, "/orders/"+id+"/payment", buyer, gin.H{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["details"], "transactionId is required")

	rec, _ = s.do(http.MethodPost, "/orders/"+id+"/payment", s.token(s.seller, models.RoleSeller), gin.H{"transactionId": "X"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body = s.do(http.MethodPost, "/orders/"+id+"/payment", buyer, gin.H{"transactionId": "KBZ-1"})
	require.Equal(t, http.StatusOK, rec.Code)
	confirmation := body["paymentConfirmation"].(map[string]interface{})
	assert.Equal(t, "KBZ-1", confirmation["transactionId"])
	assert.Regexp(t, "^RCPT-", confirmation["receiptId"])

	rec, body = s.do(http.MethodPost, "/orders/"+id+"/payment", buyer, gin.H{"transactionId": "KBZ-1"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, orders.CodeAlreadyPaid, body["code"])
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	id := s.createOrder("KBZPay")

	rec, _ := s.do(http.MethodGet, "/admin/api/orders/"+id+"/logs", s.token(s.seller, models.RoleSeller), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec, _ = s.do(http.MethodPost, "/admin/api/orders/"+id+"/escrow/release", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, body := s.do(http.MethodPost, "/admin/api/orders/nope/escrow/release", s.token(s.admin, models.RoleAdmin), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid id", body["error"])
}

func TestListOrdersEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.createOrder("COD")
	s.createOrder("COD")

	rec, body := s.do(http.MethodGet, "/orders?page=1&limit=1", s.token(s.buyer, models.RoleBuyer), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total"])
	assert.Len(t, body["orders"], 1)

	rec, _ = s.do(http.MethodGet, "/orders?limit=500", s.token(s.buyer, models.RoleBuyer), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(http.MethodGet, "/orders", s.token(primitive.NewObjectID(), models.RoleSeller), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, body["total"])
}

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	verifier := identity.NewVerifier("x")

	ok := NewRouter(nil, verifier, pingerFunc(func(context.Context) error { return nil }), time.Second)
	rec := httptest.NewRecorder()
	ok.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	down := NewRouter(nil, verifier, pingerFunc(func(context.Context) error { return errors.New("no primary") }), time.Second)
	rec = httptest.NewRecorder()
	down.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "database unavailable")
}

func TestRespondEngineErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
	}{
		{&orders.Error{Kind: orders.KindValidation, Message: "bad"}, http.StatusBadRequest},
		{&orders.Error{Kind: orders.KindNotFound, Message: "gone"}, http.StatusNotFound},
		{&orders.Error{Kind: orders.KindForbidden, Message: "no"}, http.StatusForbidden},
		{&orders.Error{Kind: orders.KindConflict, Message: "busy"}, http.StatusConflict},
		{&orders.Error{Kind: orders.KindTransactionFailure, Message: "retry"}, http.StatusConflict},
		{&orders.Error{Kind: orders.KindInternal, Message: "boom", Err: errors.New("secret cause")}, http.StatusInternalServerError},
		{errors.New("foreign"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		respondEngineError(c, "TEST", tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		assert.NotContains(t, rec.Body.String(), "secret cause")
	}
}

func TestRecoversHandlerPanic(t *testing.T) {
	s := newTestServer(t)
	r := NewRouter(panicService{}, s.verifier, s.store, time.Second)

	req := httptest.NewRequest(http.MethodGet, "/orders/"+primitive.NewObjectID().Hex(), nil)
	req.Header.Set("Authorization", "Bearer "+s.token(s.admin, models.RoleAdmin))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

type panicService struct{ OrderService }

func (panicService) GetOrder(context.Context, orders.Actor, primitive.ObjectID) (models.Order, error) {
	panic("nil map")
}
