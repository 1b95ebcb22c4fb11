// Package identity registers users, logs them in and changes passwords.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/The-Quan/atm-banking-2/internal/auth"
	"github.com/The-Quan/atm-banking-2/internal/domain"
	"github.com/The-Quan/atm-banking-2/internal/ledger"
)

var (
	ErrEmailTaken         = domain.ErrEmailTaken
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = errors.New("password must be 8-64 characters")
	ErrInvalidEmail       = errors.New("email address is not valid")
	ErrNameRequired       = errors.New("name is required")
)

// Validation rules, in go-playground/validator tag syntax
const (
	nameRule     = "required"
	emailRule    = "required,email"
	passwordRule = "min=8,max=64"
)

// UserStore persists users and opens their accounts.
type UserStore interface {
	CreateUserWithAccount(ctx context.Context, u *domain.User) error
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID int64, hash string) error
}

// Service implements registration, login and password change.
type Service struct {
	users    UserStore
	tokens   *auth.Issuer
	validate *validator.Validate
	log      *logrus.Entry
}

// NewService returns a service storing users in users and signing sessions
// with tokens.
func NewService(users UserStore, tokens *auth.Issuer) *Service {
	return &Service{
		users:    users,
		tokens:   tokens,
		validate: validator.New(),
		log:      logrus.WithField("component", "identity"),
	}
}

// Register creates the user and its zero balance account.
func (s *Service) Register(ctx context.Context, name, email, password string) (*domain.User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if s.validate.Var(name, nameRule) != nil {
		return nil, ErrNameRequired
	}
	if s.validate.Var(email, emailRule) != nil {
		return nil, ErrInvalidEmail
	}
	if err := s.checkPassword(password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}
	u := &domain.User{Name: name, Email: email, Password: hash, Role: domain.RoleUser}
	if err := s.users.CreateUserWithAccount(ctx, u); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": u.ID, "account_id": u.Account.ID}).Info("User registered")
	return u, nil
}

// Login checks the credentials and returns a signed session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, ledger.ErrUserNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if !auth.CheckPassword(u.Password, password) {
		return "", nil, ErrInvalidCredentials
	}
	if u.Account == nil {
		return "", nil, ledger.ErrAccountNotFound
	}
	token, err := s.tokens.Generate(u.ID, u.Account.ID, u.Role)
	if err != nil {
		return "", nil, fmt.Errorf("identity: sign token: %w", err)
	}
	return token, u, nil
}

// ChangePassword replaces the password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, email, oldPassword, newPassword string) error {
	u, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, ledger.ErrUserNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if !auth.CheckPassword(u.Password, oldPassword) {
		return ErrInvalidCredentials
	}
	if err := s.checkPassword(newPassword); err != nil {
		return err
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("identity: hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return err
	}
	s.log.WithField("user_id", u.ID).Info("Password changed")
	return nil
}

func (s *Service) checkPassword(p string) error {
	if s.validate.Var(p, passwordRule) != nil {
		return ErrWeakPassword
	}
	return nil
}
