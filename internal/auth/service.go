package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"examboard/pkg/interfaces"
	"examboard/pkg/types"
)

// adminStore is the slice of the truth store the service needs.
type adminStore interface {
	CreateAdmin(ctx context.Context, username, passwordHash string) error
	GetAdmin(ctx context.Context, username string) (*types.Admin, error)
	CountAdmins(ctx context.Context) (int, error)
}

// Service implements interfaces.AdminStore over hashed credentials.
type Service struct {
	db  adminStore
	log zerolog.Logger
}

// NewService creates the credential service.
func NewService(db adminStore, log zerolog.Logger) *Service {
	return &Service{db: db, log: log.With().Str("component", "auth").Logger()}
}

// CreateAdmin hashes the password and stores the new administrator.
func (s *Service) CreateAdmin(ctx context.Context, username, password string) error {
	if !types.IsValidUsername(username) {
		return types.ErrInvalidUsername
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.db.CreateAdmin(ctx, username, hash); err != nil {
		return err
	}
	s.log.Info().Str("username", username).Msg("admin created")
	return nil
}

// VerifyPassword checks a credential pair. Unknown usernames and wrong
// passwords are indistinguishable to the caller.
func (s *Service) VerifyPassword(ctx context.Context, username, password string) error {
	admin, err := s.db.GetAdmin(ctx, username)
	if errors.Is(err, interfaces.ErrAdminNotFound) {
		return interfaces.ErrUnauthorized
	}
	if err != nil {
		return fmt.Errorf("load admin: %w", err)
	}
	return CheckPassword(admin.PasswordHash, password)
}

// Bootstrap seeds the default admin account when the store is empty so a
// fresh deployment can be logged into.
func (s *Service) Bootstrap(ctx context.Context, password string) error {
	count, err := s.db.CountAdmins(ctx)
	if err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if count > 0 || password == "" {
		return nil
	}
	if err := s.CreateAdmin(ctx, "admin", password); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}
	s.log.Warn().Msg("seeded default admin account, change its password")
	return nil
}
