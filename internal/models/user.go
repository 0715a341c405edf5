package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleAdmin:
		return true
	}
	return false
}

// User is the identity record owned by the identity subsystem. The order
// engine reads it only to check that a seller exists.
type User struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name               string             `bson:"name" json:"name"`
	Role               Role               `bson:"role" json:"role"`
	VerificationStatus string             `bson:"verificationStatus,omitempty" json:"verificationStatus,omitempty"`
}
