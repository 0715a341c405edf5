package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chat is the slice of a chat document the order engine reads and writes.
type Chat struct {
	ID               primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	BuyerID          primitive.ObjectID  `bson:"buyerId" json:"buyerId"`
	SellerID         primitive.ObjectID  `bson:"sellerId" json:"sellerId"`
	CurrentProductID *primitive.ObjectID `bson:"currentProductId,omitempty" json:"currentProductId,omitempty"`
	OrderID          *primitive.ObjectID `bson:"orderId,omitempty" json:"orderId,omitempty"`
	Version          int64               `bson:"version" json:"-"`
	UpdatedAt        time.Time           `bson:"updatedAt" json:"updatedAt"`
}

func (c Chat) BelongsTo(buyerID, sellerID primitive.ObjectID) bool {
	return c.BuyerID == buyerID && c.SellerID == sellerID
}
