package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/models"
)

func TestStatusPolicyFields(t *testing.T) {
	buyer := Actor{ID: primitive.NewObjectID(), Role: models.RoleBuyer}
	seller := Actor{ID: primitive.NewObjectID(), Role: models.RoleSeller}
	order := models.Order{BuyerID: buyer.ID, SellerID: seller.ID}

	d := StatusPolicy(seller, order, models.StatusShipped)
	assert.True(t, d.Allowed)
	assert.True(t, d.Permits(FieldTracking|FieldProof|FieldNotes))

	d = StatusPolicy(buyer, order, models.StatusCancelled)
	assert.True(t, d.Allowed)
	assert.True(t, d.Permits(FieldNotes))
	assert.False(t, d.Permits(FieldTracking))
	assert.False(t, d.Permits(FieldProof))

	d = StatusPolicy(buyer, order, models.StatusDelivered)
	assert.False(t, d.Allowed)
	assert.Equal(t, "buyers may only cancel orders", d.Reason)
	assert.False(t, d.Permits(0), "a denied decision permits nothing")
}

func TestListScope(t *testing.T) {
	id := primitive.NewObjectID()

	filter, d := ListScope(Actor{ID: id, Role: models.RoleBuyer})
	assert.True(t, d.Allowed)
	if assert.NotNil(t, filter.BuyerID) {
		assert.Equal(t, id, *filter.BuyerID)
	}
	assert.Nil(t, filter.SellerID)

	filter, d = ListScope(Actor{ID: id, Role: models.RoleAdmin})
	assert.True(t, d.Allowed)
	assert.Nil(t, filter.BuyerID)
	assert.Nil(t, filter.SellerID)
}
