package auth

import (
	"errors"
	"fmt"
	"time"

	"staybook/pkg/model"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
)

type Claims struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	UserType model.UserType `json:"user_type"`
	jwt.RegisteredClaims
}

type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Issue signs an HS256 token for identity. Used by operators and tests; the
// login flow that normally issues tokens lives outside this service.
func (v *TokenVerifier) Issue(identity *Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		ID:       identity.ID,
		Email:    identity.Email,
		UserType: identity.UserType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (v *TokenVerifier) Verify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.ID == "" {
		claims.ID = claims.Subject
	}
	if claims.ID == "" || !claims.UserType.IsValid() {
		return nil, fmt.Errorf("%w: missing id or user_type claim", ErrInvalidToken)
	}

	return &Identity{
		ID:       claims.ID,
		Email:    claims.Email,
		UserType: claims.UserType,
	}, nil
}
