package postgres

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/boxvault/internal/config"
	"github.com/prn-tf/boxvault/internal/domain"
)

// newTestDB connects to the database named by BOXVAULT_TEST_POSTGRES_HOST.
// The schema is migrated up and rolled back when the test ends.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	host := os.Getenv("BOXVAULT_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("BOXVAULT_TEST_POSTGRES_HOST not set")
	}
	port, _ := strconv.Atoi(os.Getenv("BOXVAULT_TEST_POSTGRES_PORT"))
	if port == 0 {
		port = 5432
	}

	cfg := config.DatabaseConfig{
		Driver:          "postgres",
		Host:            host,
		Port:            port,
		User:            envOr("BOXVAULT_TEST_POSTGRES_USER", "boxvault"),
		Password:        os.Getenv("BOXVAULT_TEST_POSTGRES_PASSWORD"),
		Database:        envOr("BOXVAULT_TEST_POSTGRES_DB", "boxvault_test"),
		SSLMode:         "disable",
		MaxOpenConns:    4,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
	}

	ctx := context.Background()
	db, err := NewDB(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	t.Cleanup(func() {
		_ = db.MigrateDown(context.Background())
		_ = db.Close()
	})
	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestPostgresCatalog(t *testing.T) {
	db := newTestDB(t)
	repos := db.Repositories()
	ctx := context.Background()

	org := domain.NewOrganization("acme")
	require.NoError(t, repos.Organization.Create(ctx, org))

	box := domain.NewBox(org.ID, 1, "Debian12")
	require.NoError(t, repos.Box.Create(ctx, box))
	assert.ErrorIs(t, repos.Box.Create(ctx, domain.NewBox(org.ID, 1, "Debian12")), domain.ErrAlreadyExists)

	folded, err := repos.Box.FindByNameFold(ctx, org.ID, "debian12")
	require.NoError(t, err)
	assert.Equal(t, box.ID, folded.ID)

	ver := &domain.Version{BoxID: box.ID, VersionNumber: "1.0.0"}
	require.NoError(t, repos.Version.Create(ctx, ver))
	prov := &domain.Provider{VersionID: ver.ID, Name: "libvirt"}
	require.NoError(t, repos.Provider.Create(ctx, prov))
	arch := &domain.Architecture{ProviderID: prov.ID, Name: "amd64"}
	require.NoError(t, repos.Architecture.Create(ctx, arch))

	f := domain.NewFile(arch.ID)
	f.FileSize = 10
	require.NoError(t, repos.File.Upsert(ctx, f))
	require.NoError(t, repos.File.IncrementDownloadCount(ctx, arch.ID))

	again := domain.NewFile(arch.ID)
	again.FileSize = 20
	require.NoError(t, repos.File.Upsert(ctx, again))
	assert.Equal(t, f.ID, again.ID)
	assert.Equal(t, int64(1), again.DownloadCount)

	deleted, err := repos.File.DeleteByArchitecture(ctx, arch.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = repos.File.GetByArchitecture(ctx, arch.ID)
	assert.ErrorIs(t, err, domain.ErrFileNotFound)
}
