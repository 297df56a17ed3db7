package services

import (
	"fmt"
	"log"

	"github.com/dgrijalva/jwt-go"
)

// TokenService validates access tokens issued by the account service.
type TokenService struct {
	jwtSecret []byte
}

// NewTokenService creates a new TokenService.
func NewTokenService(jwtSecret string) *TokenService {
	return &TokenService{jwtSecret: []byte(jwtSecret)}
}

// TokenClaims is what the ordering pipeline needs from an access token.
type TokenClaims struct {
	UserID  string
	IsAdmin bool
}

// ValidateToken parses and validates a JWT token, returning its claims if valid.
func (s *TokenService) ValidateToken(tokenString string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		log.Printf("Token validation error: %v", err)
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return nil, fmt.Errorf("invalid token: missing user_id")
	}
	isAdmin, _ := claims["is_admin"].(bool)
	return &TokenClaims{UserID: userID, IsAdmin: isAdmin}, nil
}
