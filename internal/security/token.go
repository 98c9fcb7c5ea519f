package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("wrong token type for this endpoint")
	ErrMissingCompany = errors.New("token carries no company")
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

const issuer = "equiprent-auth"

// UserClaims are the claims the booking CRUD layer signs. CompanyID selects
// the tenant every request is scoped to.
type UserClaims struct {
	UserID    int64     `json:"user_id"`
	CompanyID int64     `json:"company_id"`
	Email     string    `json:"email,omitempty"`
	Type      TokenType `json:"type"`
	Roles     []string  `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type TokenManager interface {
	GenerateAccessToken(userID, companyID int64, email string, roles []string) (string, error)
	GenerateRefreshToken(userID, companyID int64, email string) (string, error)
	ValidateToken(tokenString string) (*UserClaims, error)
}

type tokenManager struct {
	secret        []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

// NewTokenManager signs with secret. Zero expiries fall back to one hour for
// access tokens and seven days for refresh tokens.
func NewTokenManager(secret string, accessExpiry, refreshExpiry time.Duration) TokenManager {
	if accessExpiry <= 0 {
		accessExpiry = time.Hour
	}
	if refreshExpiry <= 0 {
		refreshExpiry = 7 * 24 * time.Hour
	}
	return &tokenManager{
		secret:        []byte(secret),
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

func (m *tokenManager) sign(claims UserClaims, expiry time.Duration, audience string) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(claims.UserID, 10),
		ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    issuer,
		Audience:  jwt.ClaimStrings{audience},
		ID:        generateJTI(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *tokenManager) GenerateAccessToken(userID, companyID int64, email string, roles []string) (string, error) {
	return m.sign(UserClaims{
		UserID:    userID,
		CompanyID: companyID,
		Email:     email,
		Type:      TokenTypeAccess,
		Roles:     roles,
	}, m.accessExpiry, "api-access")
}

func (m *tokenManager) GenerateRefreshToken(userID, companyID int64, email string) (string, error) {
	return m.sign(UserClaims{
		UserID:    userID,
		CompanyID: companyID,
		Email:     email,
		Type:      TokenTypeRefresh,
	}, m.refreshExpiry, "token-refresh")
}

func (m *tokenManager) ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 && claims.Subject != "" {
		uid, _ := strconv.ParseInt(claims.Subject, 10, 64)
		claims.UserID = uid
	}
	return claims, nil
}

// RequireAccess checks that claims belong to an access token bound to a company.
func RequireAccess(claims *UserClaims) error {
	if claims.Type != TokenTypeAccess {
		return ErrWrongTokenType
	}
	if claims.CompanyID <= 0 {
		return ErrMissingCompany
	}
	return nil
}

func generateJTI() string {
	return strconv.FormatInt(time.Now().UnixNano(), 16)
}
