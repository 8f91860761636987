package store

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"survey-backend/internal/logger"
)

const (
	defaultAdminEmail    = "admin@localhost"
	defaultAdminPassword = "changeme"
)

// Bootstrap migrates the schema and seeds the first admin user.
func (s *Store) Bootstrap(ctx context.Context, log *logger.Logger) error {
	ran, err := s.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, id := range ran {
		log.Info("migration applied", "migration", id)
	}
	if err := s.seedAdminUser(ctx, log); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return nil
}

func (s *Store) seedAdminUser(ctx context.Context, log *logger.Logger) error {
	var count int
	if err := s.Pool.QueryRow(ctx, SQL("count-users")).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(defaultAdminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	var id string
	err = s.Pool.QueryRow(ctx, SQL("create-user"),
		defaultAdminEmail, string(hash), []string{"admin"}, []string{},
	).Scan(&id)
	if err != nil {
		return MapError(err)
	}

	log.Warn("default admin user created, change the password immediately", "email", defaultAdminEmail)
	return nil
}
