package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/medrec/medrec/internal/platform/auth"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

const minPasswordLen = 6

type Service struct {
	repo      Repository
	jwtSecret string
	expiresIn time.Duration
	log       zerolog.Logger
}

func NewService(repo Repository, jwtSecret string, expiresIn time.Duration, log zerolog.Logger) *Service {
	return &Service{repo: repo, jwtSecret: jwtSecret, expiresIn: expiresIn, log: log}
}

// Register creates a new account. The password is stored as a bcrypt hash.
func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 3-20 letters, digits or underscores", ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &User{Username: username, PasswordHash: string(hash)}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	s.log.Info().Str("username", username).Msg("user registered")
	return u, nil
}

// LoginResult is what a successful login hands back to the client.
type LoginResult struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Token     string `json:"token"`
	ExpiresIn string `json:"expiresIn"`
}

// Login verifies the credentials, records the login time, and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	u, err := s.repo.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now()
	if err := s.repo.UpdateLastLogin(ctx, u.ID, now); err != nil {
		s.log.Warn().Err(err).Str("user_id", u.ID.String()).Msg("record last login failed")
	}

	token, err := auth.Sign(s.jwtSecret, u.ID.String(), u.Username, s.expiresIn)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &LoginResult{
		UserID:    u.ID.String(),
		Username:  u.Username,
		Token:     token,
		ExpiresIn: s.expiresIn.String(),
	}, nil
}
