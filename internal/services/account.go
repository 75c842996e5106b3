package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/driveclone/apiserver/internal/auth"
	"github.com/driveclone/apiserver/internal/store"
	"github.com/driveclone/apiserver/types"
)

var (
	// ErrInvalidCredentials is returned for an unknown username and for a
	// wrong password alike.
	ErrInvalidCredentials = errors.New("username or password is incorrect")

	// ErrStore wraps failures of the credential store.
	ErrStore = errors.New("credential store failure")
)

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	GetByUsername(ctx context.Context, username string) (types.Account, error)
	FindConflict(ctx context.Context, username, email string) error
	Create(ctx context.Context, account types.Account) (types.Account, error)
	Ping(ctx context.Context) error
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in *RegisterInput) normalize() {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Password = strings.TrimSpace(in.Password)
}

func (in RegisterInput) validate() error {
	return toValidationError(validation.ValidateStruct(&in,
		validation.Field(&in.Email, emailRules...),
		validation.Field(&in.Password, passwordRules...),
		validation.Field(&in.Username, usernameRules...),
	))
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (in *LoginInput) normalize() {
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))
	in.Password = strings.TrimSpace(in.Password)
}

func (in LoginInput) validate() error {
	return toValidationError(validation.ValidateStruct(&in,
		validation.Field(&in.Username, usernameRules...),
		validation.Field(&in.Password, passwordRules...),
	))
}

// LoginResult carries a freshly issued session token.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   types.Account
}

type AccountConfig struct {
	TokenTTL   time.Duration
	BcryptCost int
}

// AccountService registers accounts and exchanges credentials for session tokens.
type AccountService struct {
	repo   AccountRepository
	codec  *auth.Codec
	ttl    time.Duration
	cost   int
	logger zerolog.Logger

	// decoy is compared against when the username is unknown so that both
	// failure paths spend the same bcrypt work.
	decoy []byte
}

func NewAccountService(repo AccountRepository, codec *auth.Codec, cfg AccountConfig, logger zerolog.Logger) (*AccountService, error) {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cfg.BcryptCost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	decoy, err := bcrypt.GenerateFromPassword([]byte("decoy-password"), cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("generate decoy hash: %w", err)
	}
	return &AccountService{
		repo:   repo,
		codec:  codec,
		ttl:    cfg.TokenTTL,
		cost:   cfg.BcryptCost,
		logger: logger.With().Str("component", "accounts").Logger(),
		decoy:  decoy,
	}, nil
}

// TokenTTL is the lifetime of tokens issued by Login.
func (s *AccountService) TokenTTL() time.Duration {
	return s.ttl
}

// Register validates the input, checks that neither the username nor the
// email is taken and stores the account with a bcrypt hash of the password.
// The store's unique constraints decide races between concurrent registrations.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (types.Account, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return types.Account{}, err
	}

	if err := s.repo.FindConflict(ctx, in.Username, in.Email); err != nil {
		return types.Account{}, s.storeError(err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return types.Account{}, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.repo.Create(ctx, types.Account{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hashed),
	})
	if err != nil {
		return types.Account{}, s.storeError(err)
	}

	s.logger.Info().Str("user_id", account.ID).Str("username", account.Username).Msg("account registered")
	return account, nil
}

// Login verifies the username and password and issues a session token.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return LoginResult{}, err
	}

	account, err := s.repo.GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.decoy, []byte(in.Password))
			s.logger.Info().Str("username", in.Username).Msg("login rejected")
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, s.storeError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(in.Password)); err != nil {
		s.logger.Info().Str("username", in.Username).Msg("login rejected")
		return LoginResult{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.codec.Issue(auth.Identity{
		UserID:   account.ID,
		Username: account.Username,
		Email:    account.Email,
	}, s.ttl)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info().Str("user_id", account.ID).Str("username", account.Username).Msg("login succeeded")
	return LoginResult{Token: token, ExpiresAt: expiresAt, Account: account}, nil
}

// Ping reports whether the credential store is reachable.
func (s *AccountService) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return s.storeError(err)
	}
	return nil
}

func (s *AccountService) storeError(err error) error {
	if errors.Is(err, store.ErrDuplicateIdentity) {
		return err
	}
	s.logger.Error().Err(err).Msg("credential store failure")
	return fmt.Errorf("%w: %w", ErrStore, err)
}
