package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pitchingcoachu/portal/internal/config"
	"github.com/pitchingcoachu/portal/internal/database"
	"github.com/pitchingcoachu/portal/internal/model"
	"github.com/pitchingcoachu/portal/internal/password"
	"github.com/pitchingcoachu/portal/internal/store"
)

// SeedReport counts what SyncSeedUsers changed.
type SeedReport struct {
	Inserted   int
	Backfilled int
}

// SyncSeedUsers inserts configured users missing from the store with a
// fresh hash of their password and their primary app URL. Existing rows
// only get an empty app_url or name filled in; the stored password is
// never replaced.
func SyncSeedUsers(ctx context.Context, users *store.UserStore, seeds config.UserSeedSource, hasher *password.Hasher, now time.Time) (*SeedReport, error) {
	report := &SeedReport{}
	for _, su := range seeds.Users {
		primary := su.Identity().PrimaryApp().URL

		existing, err := users.GetByEmail(ctx, su.Email)
		if err != nil {
			return report, err
		}

		if existing == nil {
			hash, err := hasher.Hash(su.Password)
			if err != nil {
				return report, fmt.Errorf("hash seed password for %s: %w", su.Email, err)
			}
			_, err = users.Create(ctx, &model.User{
				Email:        su.Email,
				Name:         su.Name,
				PasswordHash: hash,
				AppURL:       primary,
			}, now)
			if err != nil {
				return report, fmt.Errorf("seed %s: %w", su.Email, err)
			}
			report.Inserted++
			continue
		}

		changed, err := users.BackfillProfile(ctx, su.Email, primary, su.Name, now)
		if err != nil {
			return report, fmt.Errorf("backfill %s: %w", su.Email, err)
		}
		if changed {
			report.Backfilled++
		}
	}
	return report, nil
}

// EnsureSchemaReady brings the schema up to date and syncs the seed users
// into it. It is safe to run on every start.
func EnsureSchemaReady(ctx context.Context, db *database.DB, seeds config.UserSeedSource, hasher *password.Hasher, logger *slog.Logger) error {
	schema, err := database.EnsureSchema(ctx, db)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if schema.DroppedLegacyResetTokens {
		logger.Warn("dropped incompatible password_reset_tokens table; outstanding reset links are void")
	}
	if len(schema.AddedColumns) > 0 {
		logger.Info("added auth_users columns", "columns", schema.AddedColumns)
	}
	if schema.Migrations > 0 {
		logger.Info("applied migrations", "count", schema.Migrations)
	}

	seed, err := SyncSeedUsers(ctx, store.NewUserStore(db), seeds, hasher, time.Now())
	if err != nil {
		return fmt.Errorf("sync seed users: %w", err)
	}
	if seed.Inserted > 0 || seed.Backfilled > 0 {
		logger.Info("synced seed users", "source", seeds.Shape.String(), "inserted", seed.Inserted, "backfilled", seed.Backfilled)
	}
	return nil
}
