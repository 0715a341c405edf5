package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/models"
)

func TestConfirmPayment(t *testing.T) {
	f := newFixture(t)
	id := f.createOrder("KBZPay")

	res, err := f.engine.ConfirmPayment(context.Background(), f.buyer, PaymentInput{OrderID: id, TransactionID: " KBZ-42 ", ReceiptID: "R-7"})
	require.NoError(t, err)
	assert.Equal(t, "KBZ-42", res.PaymentConfirmation.TransactionID)
	assert.Equal(t, "R-7", res.PaymentConfirmation.ReceiptID)
	assert.Equal(t, "KBZPay", res.PaymentConfirmation.Method)
	assert.Equal(t, f.buyer.ID.Hex(), res.PaymentConfirmation.ConfirmedBy)
	assert.False(t, res.EscrowReleased)

	o := f.order(id)
	assert.Equal(t, models.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, models.StatusPending, o.Status)
	require.NotNil(t, o.PaymentConfirmation)
	require.NotNil(t, o.PaidAt)
	assert.False(t, o.EscrowReleased, "escrow waits for delivery")
}

func TestConfirmPaymentDefaultsReceipt(t *testing.T) {
	f := newFixture(t)
	id := f.createOrder("other")

	res := f.pay(id)
	assert.Equal(t, "RCPT-test", res.PaymentConfirmation.ReceiptID)
}

func TestConfirmPaymentGeneratesReceiptIDs(t *testing.T) {
	f := newFixture(t)
	f.engine = NewEngine(f.store, f.rec)
	id := f.createOrder("WavePay")

	res := f.pay(id)
	assert.Regexp(t, `^RCPT-[0-9a-f-]{36}$`, res.PaymentConfirmation.ReceiptID)
}

func TestConfirmPaymentRejections(t *testing.T) {
	f := newFixture(t)
	prepaid := f.createOrder("KBZPay")
	cod := f.createOrder("COD")

	_, err := f.engine.ConfirmPayment(context.Background(), f.buyer, PaymentInput{OrderID: prepaid, TransactionID: "  "})
	assert.Equal(t, KindValidation, KindOf(err))

	_, err = f.engine.ConfirmPayment(context.Background(), f.seller, PaymentInput{OrderID: prepaid, TransactionID: "X"})
	assert.Equal(t, KindForbidden, KindOf(err))

	_, err = f.engine.ConfirmPayment(context.Background(), f.buyer, PaymentInput{OrderID: primitive.NewObjectID(), TransactionID: "X"})
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = f.engine.ConfirmPayment(context.Background(), f.buyer, PaymentInput{OrderID: cod, TransactionID: "X"})
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, CodeCODPayment, CodeOf(err))

	f.pay(prepaid)
	_, err = f.engine.ConfirmPayment(context.Background(), f.buyer, PaymentInput{OrderID: prepaid, TransactionID: "X"})
	assert.Equal(t, CodeAlreadyPaid, CodeOf(err))

	cancelled := f.createOrder("WavePay")
	f.mustUpdate(f.buyer, cancelled, models.StatusCancelled)
	_, err = f.engine.ConfirmPayment(context.Background(), f.buyer, PaymentInput{OrderID: cancelled, TransactionID: "X"})
	assert.Equal(t, CodeOrderClosed, CodeOf(err))
	assert.Equal(t, models.PaymentPending, f.order(cancelled).PaymentStatus)
}

func TestPaymentAfterDeliveryReleasesEscrow(t *testing.T) {
	f := newFixture(t)
	id := f.createOrder("KBZPay")
	res := f.deliver(id)
	assert.False(t, res.EscrowReleased)
	assert.Equal(t, models.PaymentPending, res.PaymentStatus)

	paid := f.pay(id)
	assert.True(t, paid.EscrowReleased)

	o := f.order(id)
	assert.True(t, o.EscrowReleased)
	assert.Equal(t, models.SystemActor, o.EscrowReleasedBy)
	ev, ok := f.rec.last(models.EventEscrowReleased)
	require.True(t, ok)
	assert.Equal(t, triggerPayment, ev.Metadata["trigger"])
	assert.Equal(t, false, ev.Metadata["manual"])
}

func TestPaymentBeforeDeliveryReleasesOnDelivery(t *testing.T) {
	f := newFixture(t)
	id := f.createOrder("KBZPay")
	f.pay(id)

	res := f.deliver(id)
	assert.True(t, res.EscrowReleased)
	ev, ok := f.rec.last(models.EventEscrowReleased)
	require.True(t, ok)
	assert.Equal(t, triggerDelivery, ev.Metadata["trigger"])
}
