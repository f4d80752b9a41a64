package service

import (
	"context"
	"errors"
	"log"

	"tenapay/internal/auth"
	"tenapay/internal/config"
	"tenapay/internal/model"
	"tenapay/internal/repository"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserService handles member registration, login and profile reads.
type UserService struct {
	accounts *repository.AccountRepository
	authCfg  *config.AuthConfig
}

func NewUserService(db *gorm.DB, cfg *config.Config) *UserService {
	return &UserService{
		accounts: repository.NewAccountRepository(db),
		authCfg:  &cfg.Auth,
	}
}

// AuthResult carries the account and its session token back to the handler.
type AuthResult struct {
	Account *model.Account `json:"account"`
	Token   string         `json:"token"`
}

// Register creates a member account with a zero health-fund balance.
func (s *UserService) Register(ctx context.Context, email, phone, password string) (*AuthResult, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	if !phonePattern.MatchString(phone) {
		return nil, ErrInvalidPhone
	}

	if _, err := s.accounts.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	account := &model.Account{
		Email:        email,
		Phone:        phone,
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		Balance:      decimal.Zero,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	token, err := auth.IssueToken(s.authCfg, account.ID, account.Role)
	if err != nil {
		return nil, err
	}

	log.Printf("[UserService] member registered: userID=%d, phone=%s", account.ID, phone)

	return &AuthResult{Account: account, Token: token}, nil
}

// Login verifies credentials and issues a session token. The same error is
// returned for an unknown email and a wrong password.
func (s *UserService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := auth.IssueToken(s.authCfg, account.ID, account.Role)
	if err != nil {
		return nil, err
	}

	return &AuthResult{Account: account, Token: token}, nil
}

// Profile returns the account, including the current balance.
func (s *UserService) Profile(ctx context.Context, userID int64) (*model.Account, error) {
	return s.accounts.GetByID(ctx, userID)
}
