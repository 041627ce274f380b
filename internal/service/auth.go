package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials reports a failed login: unknown account or wrong
// password, deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUserExists reports a registration against an existing login.
var ErrUserExists = errors.New("user already exists")

// AuthRepository defines the persistence operations required by the
// authentication service.
type AuthRepository interface {
	// UserExists returns true if a user with the given login exists.
	UserExists(ctx context.Context, login string) (bool, error)
	// RegisterUser creates a new user record with the given login and
	// password hash.
	RegisterUser(ctx context.Context, login string, passwordHash []byte) error
	// GetPasswordHash returns the stored hash for the login, or
	// sql.ErrNoRows if the user is unknown.
	GetPasswordHash(ctx context.Context, login string) ([]byte, error)
}

// AuthService implements account registration and login. Successful logins
// are issued a signed session token used as a bearer credential on the
// sync endpoint.
type AuthService struct {
	repo      AuthRepository
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewAuthService constructs an AuthService signing tokens with jwtSecret.
func NewAuthService(repo AuthRepository, jwtSecret []byte, tokenTTL time.Duration) *AuthService {
	return &AuthService{repo: repo, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

// Register creates a new account. The password is stored only as a bcrypt
// hash.
func (s *AuthService) Register(ctx context.Context, login, password string) error {
	exists, err := s.repo.UserExists(ctx, login)
	if err != nil {
		return err
	}
	if exists {
		return ErrUserExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.RegisterUser(ctx, login, hash)
}

// Login verifies the password and returns a signed session token.
func (s *AuthService) Login(ctx context.Context, login, password string) (string, error) {
	hash, err := s.repo.GetPasswordHash(ctx, login)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   login,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	})
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates a session token and returns the login it was issued to.
func (s *AuthService) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCredentials
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidCredentials
	}
	return claims.Subject, nil
}
