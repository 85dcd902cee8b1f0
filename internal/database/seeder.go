// internal/database/seeder.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"freight-resale-api-server/internal/models"

	"github.com/rs/zerolog"
)

// UserStore is what seeding needs from a user collection.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (models.User, error)
	Insert(ctx context.Context, u models.User) error
}

// AdminSeed describes the bootstrap administrator.
type AdminSeed struct {
	Email        string
	PasswordHash string
	CompanyName  string
}

// SeedAdmin inserts the administrator account unless its email is already
// registered. It reports whether a user was created.
func SeedAdmin(ctx context.Context, users UserStore, seed AdminSeed, logger zerolog.Logger) (bool, error) {
	if seed.Email == "" {
		return false, nil
	}
	_, err := users.FindByEmail(ctx, seed.Email)
	if err == nil {
		logger.Info().Str("email", seed.Email).Msg("admin already exists, seeding skipped")
		return false, nil
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return false, err
	}

	admin := models.User{
		ID:           models.NewID(),
		Email:        seed.Email,
		CompanyName:  seed.CompanyName,
		PasswordHash: seed.PasswordHash,
		Role:         models.RoleAdmin,
		CreatedAt:    models.Stamp(time.Now()),
	}
	if err := users.Insert(ctx, admin); err != nil {
		if errors.Is(err, models.ErrEmailTaken) {
			return false, nil
		}
		return false, fmt.Errorf("seed admin: %w", err)
	}
	logger.Info().Str("email", seed.Email).Msg("admin seeded")
	return true, nil
}
