// Package identity verifies bearer credentials issued by the identity
// subsystem and turns them into a Principal. The role claim is trusted as is.
package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"marketplace/internal/models"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidClaim = errors.New("invalid token claims")
)

type Principal struct {
	UserID             primitive.ObjectID
	Role               models.Role
	VerificationStatus string
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses an HS256 token. The user id is read from "sub" and falls
// back to "userId".
func (v *Verifier) Verify(raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, ErrInvalidClaim
	}

	subject, _ := claims["sub"].(string)
	if strings.TrimSpace(subject) == "" {
		subject, _ = claims["userId"].(string)
	}
	userID, err := primitive.ObjectIDFromHex(strings.TrimSpace(subject))
	if err != nil {
		return Principal{}, ErrInvalidClaim
	}

	role, _ := claims["role"].(string)
	status, _ := claims["verificationStatus"].(string)
	return Principal{
		UserID:             userID,
		Role:               models.Role(role),
		VerificationStatus: status,
	}, nil
}

// Issue signs a token for p. The identity subsystem owns real issuance; this
// exists for local runs and tests.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  p.UserID.Hex(),
		"role": string(p.Role),
		"exp":  time.Now().Add(ttl).Unix(),
	}
	if p.VerificationStatus != "" {
		claims["verificationStatus"] = p.VerificationStatus
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
