package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrInvalidClaims = errors.New("invalid claims")
)

// Principal is the authenticated caller. Ownership checks compare ID verbatim.
type Principal struct {
	ID   primitive.ObjectID
	Role string
}

func (p Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// Service verifies and issues HS256 bearer tokens carrying "id" and "role" claims.
type Service struct {
	secret []byte
}

func NewService(secret string) *Service {
	return &Service{secret: []byte(secret)}
}

func (s *Service) Verify(raw string) (Principal, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, ErrInvalidClaims
	}

	sub, _ := claims["id"].(string)
	id, err := primitive.ObjectIDFromHex(sub)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: bad id", ErrInvalidClaims)
	}

	role, _ := claims["role"].(string)
	return Principal{ID: id, Role: role}, nil
}

// Issue signs a token for p. A zero ttl yields a token without expiry.
func (s *Service) Issue(p Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"id":   p.ID.Hex(),
		"role": p.Role,
		"iat":  now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
