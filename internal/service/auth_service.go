package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"docxingest/internal/config"
	"docxingest/internal/domain"
)

const operatorAudience = "operator"

// Claims represents the JWT claims of an operator token.
type Claims struct {
	jwt.RegisteredClaims
	Operator string `json:"operator"`
}

// Token is an issued operator access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenInput is the DTO for token requests.
type TokenInput struct {
	OperatorKey string `json:"operator_key" binding:"required,min=16"`
	Operator    string `json:"operator"`
}

// AuthService defines the operator authentication contract.
type AuthService interface {
	IssueToken(input TokenInput) (*Token, error)
	ValidateToken(tokenString string) (*Claims, error)
}

type authService struct {
	jwtCfg  config.JWTConfig
	keyHash []byte
	now     func() time.Time
}

// NewAuthService creates a new AuthService implementation.
func NewAuthService(jwtCfg config.JWTConfig, authCfg config.AuthConfig) AuthService {
	return &authService{
		jwtCfg:  jwtCfg,
		keyHash: []byte(authCfg.OperatorKeyHash),
		now:     time.Now,
	}
}

func (s *authService) IssueToken(input TokenInput) (*Token, error) {
	if len(s.keyHash) == 0 {
		return nil, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(s.keyHash, []byte(input.OperatorKey)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}

	operator := input.Operator
	if operator == "" {
		operator = "operator"
	}

	now := s.now()
	expiry := now.Add(s.jwtCfg.AccessTokenExpiry)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operator,
			Issuer:    s.jwtCfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{operatorAudience},
		},
		Operator: operator,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.jwtCfg.Secret))
	if err != nil {
		return nil, fmt.Errorf("auth.IssueToken: signing token: %w", err)
	}
	return &Token{AccessToken: signed, ExpiresAt: expiry}, nil
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtCfg.Secret), nil
	}, jwt.WithAudience(operatorAudience), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}
