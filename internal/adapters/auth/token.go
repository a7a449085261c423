// Package auth signs the tokens embedded in emailed ticket links. The
// signing secret is injected at construction; nothing reads process-global
// state.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"campustickets/internal/domain"
)

type ticketClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

type ticketTokenSigner struct {
	secret []byte
	ttl    time.Duration
}

// NewTicketTokenSigner returns a TicketTokenSigner that signs HS256 JWTs
// binding a ticket id to the holder's email address for ttl.
func NewTicketTokenSigner(secret string, ttl time.Duration) domain.TicketTokenSigner {
	return &ticketTokenSigner{secret: []byte(secret), ttl: ttl}
}

func (s *ticketTokenSigner) Sign(ticketID, email string) (string, error) {
	now := time.Now()
	claims := ticketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ticketID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Email: email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign ticket token: %w", err)
	}
	return tokenString, nil
}

func (s *ticketTokenSigner) Verify(tokenString string) (ticketID, email string, err error) {
	claims := &ticketClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", errors.New("invalid or expired ticket token")
	}
	if claims.Subject == "" {
		return "", "", errors.New("ticket token has no subject")
	}
	return claims.Subject, claims.Email, nil
}
