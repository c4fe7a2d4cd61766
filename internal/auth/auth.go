// Package auth issues and validates the JWT credentials behind the listing
// API. Merchants and viewers authenticate the same way; what they may do is
// decided by the role carried in the token.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nearlist/nearlist/internal/models"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token expired")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
)

// Service signs and verifies access tokens and checks account credentials.
type Service struct {
	jwtSecret []byte
	tokenExp  time.Duration
}

// NewService builds the service from JWT_SECRET and JWT_EXPIRY. A missing
// expiry defaults to 24 hours.
func NewService() (*Service, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "default-secret-key-change-in-production"
	}

	exp := 24 * time.Hour
	if expStr := os.Getenv("JWT_EXPIRY"); expStr != "" {
		if parsed, err := time.ParseDuration(expStr); err == nil {
			exp = parsed
		}
	}

	return &Service{
		jwtSecret: []byte(secret),
		tokenExp:  exp,
	}, nil
}

// Authenticate checks a password against a stored account. Disabled accounts
// fail even with the right password.
func (s *Service) Authenticate(user *models.User, password string) error {
	if !user.IsActive {
		return ErrAccountDisabled
	}
	if !s.CheckPassword(password, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword hashes a password with bcrypt at the default cost.
func (s *Service) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPassword reports whether a password matches a stored hash.
func (s *Service) CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateToken issues an access token carrying the user's identity and role.
// A user holding a role outside the known set never gets a token.
func (s *Service) GenerateToken(user *models.User) (string, error) {
	if !models.IsValidRole(user.Role) {
		return "", fmt.Errorf("cannot issue token for unknown role %q", user.Role)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":  user.ID.Hex(),
		"username": user.Username,
		"role":     string(user.Role),
		"exp":      now.Add(s.tokenExp).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// GenerateRefreshToken creates an opaque refresh token.
func (s *Service) GenerateRefreshToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(bytes), nil
}

// ValidateToken verifies a token's signature and expiry and returns its
// claims. Tokens carrying a role outside the known set are rejected the same
// as forged ones.
func (s *Service) ValidateToken(tokenString string) (*models.Claims, error) {
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, err := claimString(mapClaims, "user_id")
	if err != nil {
		return nil, err
	}
	username, err := claimString(mapClaims, "username")
	if err != nil {
		return nil, err
	}
	roleStr, err := claimString(mapClaims, "role")
	if err != nil {
		return nil, err
	}
	role := models.Role(roleStr)
	if !models.IsValidRole(role) {
		return nil, ErrInvalidToken
	}
	exp, ok := mapClaims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &models.Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		Exp:      int64(exp),
	}, nil
}

func claimString(claims jwt.MapClaims, key string) (string, error) {
	value, ok := claims[key].(string)
	if !ok || value == "" {
		return "", ErrInvalidToken
	}
	return value, nil
}

// ExtractTokenFromHeader pulls the bearer token out of an Authorization
// header.
func (s *Service) ExtractTokenFromHeader(authHeader string) (string, error) {
	scheme, token, found := strings.Cut(authHeader, " ")
	if !found || scheme != "Bearer" || token == "" || strings.Contains(token, " ") {
		return "", ErrInvalidToken
	}
	return token, nil
}

// ValidatePassword enforces the minimum password strength for new accounts.
func (s *Service) ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("password must be at least 8 characters long")
	}
	return nil
}

// ValidateEmail rejects obviously malformed addresses.
func (s *Service) ValidateEmail(email string) error {
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return errors.New("invalid email format")
	}
	return nil
}

// ValidateUsername bounds the display name used on listings.
func (s *Service) ValidateUsername(username string) error {
	if len(username) < 3 {
		return errors.New("username must be at least 3 characters long")
	}
	if len(username) > 50 {
		return errors.New("username must be less than 50 characters")
	}
	return nil
}
