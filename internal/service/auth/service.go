// Package auth registers learners, verifies credentials and issues access tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/aimd54/calculus-api/internal/apperr"
	"github.com/aimd54/calculus-api/internal/clock"
	"github.com/aimd54/calculus-api/internal/config"
	"github.com/aimd54/calculus-api/internal/models"
	"github.com/aimd54/calculus-api/internal/repository"
	"github.com/aimd54/calculus-api/pkg/logger"
)

// bcrypt ignores input beyond 72 bytes.
const maxPasswordBytes = 72

const minPasswordLength = 6

// UserRepository interface for account persistence.
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByLogin(login string) (*models.User, error)
	ExistsByUsernameOrEmail(username, email string) (bool, error)
	UpdateProfile(user *models.User) error
}

// Service handles registration, login and token verification.
type Service struct {
	users UserRepository
	cfg   *config.AuthConfig
	clock clock.Clock
	log   *logger.Logger
}

// NewService creates a new auth service.
func NewService(userRepo *repository.UserRepository, cfg *config.AuthConfig, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{users: userRepo, cfg: cfg, clock: clk, log: log}
}

// NewServiceWithInterfaces creates a new auth service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(users UserRepository, cfg *config.AuthConfig, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{users: users, cfg: cfg, clock: clk, log: log}
}

// Registration is a sign-up request.
type Registration struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left unchanged.
type ProfileUpdate struct {
	DisplayName *string `json:"display_name"`
	AvatarURL   *string `json:"avatar_url"`
}

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func truncate(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}

func (r *Registration) normalize() error {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.DisplayName = strings.TrimSpace(r.DisplayName)

	if len(r.Username) < 3 || len(r.Username) > 50 {
		return apperr.Validation("username must be 3 to 50 characters")
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return apperr.Validation("email is invalid")
	}
	if len(r.Password) < minPasswordLength {
		return apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	return nil
}

// Register creates an account. A taken username or email is a conflict.
func (s *Service) Register(_ context.Context, req Registration) (*models.User, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByUsernameOrEmail(req.Username, req.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict("username or email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword(truncate(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
		IsActive:     true,
	}
	if err := s.users.Create(user); err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("user_id", user.ID).
		Str("username", user.Username).
		Msg("User registered")
	return user, nil
}

// Login checks credentials by username or email and issues a token.
func (s *Service) Login(_ context.Context, login, password string) (*models.User, *Token, error) {
	user, err := s.users.GetByLogin(strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, nil, apperr.Unauthorized("invalid credentials")
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), truncate(password)); err != nil {
		s.log.Debug().Uint("user_id", user.ID).Msg("Password mismatch")
		return nil, nil, apperr.Unauthorized("invalid credentials")
	}
	if !user.IsActive {
		return nil, nil, apperr.Unauthorized("account is disabled")
	}

	token, err := s.Issue(user.ID)
	if err != nil {
		return nil, nil, err
	}

	s.log.Info().Uint("user_id", user.ID).Msg("User logged in")
	return user, token, nil
}

// Issue signs an HS256 access token whose subject is the user id.
func (s *Service) Issue(userID uint) (*Token, error) {
	now := s.clock.Now()
	expires := now.Add(s.cfg.TokenTTL())

	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{AccessToken: signed, TokenType: "bearer", ExpiresAt: expires.UTC()}, nil
}

// Verify parses a token and returns its user id.
func (s *Service) Verify(raw string) (uint, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return 0, apperr.Unauthorized("invalid or expired token")
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Unauthorized("invalid token subject")
	}
	return uint(id), nil
}

// Authenticate verifies a token and loads its active user.
func (s *Service) Authenticate(_ context.Context, raw string) (*models.User, error) {
	id, err := s.Verify(raw)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Unauthorized("unknown user")
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, apperr.Unauthorized("account is disabled")
	}
	return user, nil
}

// Me returns the user's account.
func (s *Service) Me(_ context.Context, userID uint) (*models.User, error) {
	return s.users.GetByID(userID)
}

// UpdateProfile changes the display name and avatar.
func (s *Service) UpdateProfile(_ context.Context, userID uint, req ProfileUpdate) (*models.User, error) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if len(name) > 100 {
			return nil, apperr.Validation("display_name must be at most 100 characters")
		}
		user.DisplayName = name
	}
	if req.AvatarURL != nil {
		if len(*req.AvatarURL) > 500 {
			return nil, apperr.Validation("avatar_url must be at most 500 characters")
		}
		user.AvatarURL = strings.TrimSpace(*req.AvatarURL)
	}

	if err := s.users.UpdateProfile(user); err != nil {
		return nil, err
	}
	return user, nil
}
