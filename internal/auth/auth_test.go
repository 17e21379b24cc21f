package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pitchingcoachu/portal/internal/config"
	"github.com/pitchingcoachu/portal/internal/database"
	"github.com/pitchingcoachu/portal/internal/model"
	"github.com/pitchingcoachu/portal/internal/password"
	"github.com/pitchingcoachu/portal/internal/store"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testHasher() *password.Hasher {
	return password.NewHasherWithCost(1024, 8, 1)
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = database.EnsureSchema(ctx, db)
	require.NoError(t, err)
	return db
}

// insertUser stores a user whose password hash is derived from pw, or pw
// itself when plaintext is set.
func insertUser(t *testing.T, db *database.DB, email, name, pw, appURL string, plaintext bool) *model.User {
	t.Helper()
	hash := pw
	if !plaintext {
		var err error
		hash, err = testHasher().Hash(pw)
		require.NoError(t, err)
	}
	u, err := store.NewUserStore(db).Create(context.Background(), &model.User{
		Email: email, Name: name, PasswordHash: hash, AppURL: appURL,
	}, testNow)
	require.NoError(t, err)
	return u
}

func seedSource(users ...config.SeedUser) config.UserSeedSource {
	return config.UserSeedSource{Shape: config.ShapeList, Users: users}
}

func storeLookup(db *database.DB) UserLookup {
	return store.NewUserStore(db)
}
