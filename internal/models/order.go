package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusConfirmed OrderStatus = "confirmed"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
	StatusRefunded  OrderStatus = "refunded"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Closed reports whether the order left the lifecycle through cancellation.
func (s OrderStatus) Closed() bool {
	return s == StatusCancelled || s == StatusRefunded
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentCOD     PaymentMethod = "COD"
	PaymentKBZPay  PaymentMethod = "KBZPay"
	PaymentWavePay PaymentMethod = "WavePay"
	PaymentOther   PaymentMethod = "other"
)

var paymentMethods = []PaymentMethod{PaymentCOD, PaymentKBZPay, PaymentWavePay, PaymentOther}

// ParsePaymentMethod matches case-insensitively and returns the canonical spelling.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	raw = strings.TrimSpace(raw)
	for _, m := range paymentMethods {
		if strings.EqualFold(raw, string(m)) {
			return m, true
		}
	}
	return "", false
}

const (
	SourceChat   = "chat"
	SourceDirect = "direct"

	// SystemActor marks changes made by the engine itself, such as
	// automatic escrow release.
	SystemActor = "system"

	DefaultTrackingProvider = "local_courier"
)

// OrderItem is the frozen product snapshot taken when the order is created.
type OrderItem struct {
	ProductID primitive.ObjectID `bson:"productId" json:"productId"`
	Name      string             `bson:"name" json:"name"`
	Price     float64            `bson:"price" json:"price"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	ImageURL  string             `bson:"imageUrl,omitempty" json:"imageUrl,omitempty"`
}

type DeliveryAddress struct {
	Street string `bson:"street" json:"street"`
	City   string `bson:"city" json:"city"`
	Phone  string `bson:"phone" json:"phone"`
	Notes  string `bson:"notes,omitempty" json:"notes,omitempty"`
}

type ProofOfDelivery struct {
	PhotoURL      string    `bson:"photoUrl,omitempty" json:"photoUrl,omitempty"`
	OTPCode       string    `bson:"otpCode,omitempty" json:"otpCode,omitempty"`
	SignatureURL  string    `bson:"signatureUrl,omitempty" json:"signatureUrl,omitempty"`
	DeliveryNotes string    `bson:"deliveryNotes,omitempty" json:"deliveryNotes,omitempty"`
	ConfirmedBy   string    `bson:"confirmedBy" json:"confirmedBy"`
	ConfirmedAt   time.Time `bson:"confirmedAt" json:"confirmedAt"`
}

// HasEvidence reports whether a photo, OTP or signature was supplied.
func (p ProofOfDelivery) HasEvidence() bool {
	return p.PhotoURL != "" || p.OTPCode != "" || p.SignatureURL != ""
}

func (p ProofOfDelivery) Empty() bool {
	return !p.HasEvidence() && p.DeliveryNotes == ""
}

type PaymentConfirmation struct {
	TransactionID string    `bson:"transactionId" json:"transactionId"`
	ReceiptID     string    `bson:"receiptId" json:"receiptId"`
	Method        string    `bson:"method" json:"method"`
	ConfirmedBy   string    `bson:"confirmedBy" json:"confirmedBy"`
	ConfirmedAt   time.Time `bson:"confirmedAt" json:"confirmedAt"`
}

// Order is the central aggregate of the order engine.
type Order struct {
	ID       primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	BuyerID  primitive.ObjectID  `bson:"buyerId" json:"buyerId"`
	SellerID primitive.ObjectID  `bson:"sellerId" json:"sellerId"`
	ChatID   *primitive.ObjectID `bson:"chatId,omitempty" json:"chatId,omitempty"`

	Products        []OrderItem     `bson:"products" json:"products"`
	TotalAmount     float64         `bson:"totalAmount" json:"totalAmount"`
	PaymentMethod   PaymentMethod   `bson:"paymentMethod" json:"paymentMethod"`
	DeliveryAddress DeliveryAddress `bson:"deliveryAddress" json:"deliveryAddress"`
	OrderSource     string          `bson:"orderSource" json:"orderSource"`

	Status              OrderStatus          `bson:"status" json:"status"`
	PaymentStatus       PaymentStatus        `bson:"paymentStatus" json:"paymentStatus"`
	PaymentConfirmation *PaymentConfirmation `bson:"paymentConfirmation,omitempty" json:"paymentConfirmation,omitempty"`
	PaidAt              *time.Time           `bson:"paidAt,omitempty" json:"paidAt,omitempty"`

	TrackingNumber   string           `bson:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
	TrackingProvider string           `bson:"trackingProvider,omitempty" json:"trackingProvider,omitempty"`
	ShippedAt        *time.Time       `bson:"shippedAt,omitempty" json:"shippedAt,omitempty"`
	ProofOfDelivery  *ProofOfDelivery `bson:"proofOfDelivery,omitempty" json:"proofOfDelivery,omitempty"`
	DeliveredAt      *time.Time       `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`

	EscrowReleased     bool       `bson:"escrowReleased" json:"escrowReleased"`
	EscrowReleasedAt   *time.Time `bson:"escrowReleasedAt,omitempty" json:"escrowReleasedAt,omitempty"`
	EscrowReleasedBy   string     `bson:"escrowReleasedBy,omitempty" json:"escrowReleasedBy,omitempty"`
	CancelledAt        *time.Time `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	CancellationReason string     `bson:"cancellationReason,omitempty" json:"cancellationReason,omitempty"`
	RefundedAt         *time.Time `bson:"refundedAt,omitempty" json:"refundedAt,omitempty"`
	RefundedBy         string     `bson:"refundedBy,omitempty" json:"refundedBy,omitempty"`

	Version   int64     `bson:"version" json:"-"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Clone returns a copy that shares no slices or pointers with o.
func (o Order) Clone() Order {
	c := o
	c.Products = append([]OrderItem(nil), o.Products...)
	c.ChatID = cloneID(o.ChatID)
	if o.PaymentConfirmation != nil {
		pc := *o.PaymentConfirmation
		c.PaymentConfirmation = &pc
	}
	if o.ProofOfDelivery != nil {
		pod := *o.ProofOfDelivery
		c.ProofOfDelivery = &pod
	}
	c.PaidAt = cloneTime(o.PaidAt)
	c.ShippedAt = cloneTime(o.ShippedAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.EscrowReleasedAt = cloneTime(o.EscrowReleasedAt)
	c.CancelledAt = cloneTime(o.CancelledAt)
	c.RefundedAt = cloneTime(o.RefundedAt)
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneID(id *primitive.ObjectID) *primitive.ObjectID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
