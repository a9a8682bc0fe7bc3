package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/boxvault/internal/auth"
	"github.com/prn-tf/boxvault/internal/cache/memory"
	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/lock"
	"github.com/prn-tf/boxvault/internal/repository"
	"github.com/prn-tf/boxvault/internal/repository/sqlite"
	"github.com/prn-tf/boxvault/internal/storage"
)

const (
	adminID  int64 = 1
	memberID int64 = 2
	ownerID  int64 = 7
)

type fixture struct {
	repos    repository.Repositories
	store    *storage.FilesystemStore
	locker   *lock.MemoryLocker
	tokens   *auth.DownloadTokens
	resolver *Resolver
	files    *FileService
	boxes    *BoxService
	catalog  *CatalogService
	sa       *domain.ServiceAccount
}

func testAddr() domain.Address {
	return domain.Address{Organization: "acme", Box: "debian12", Version: "v1.0.0", Provider: "virtualbox", Architecture: "amd64"}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.Nop()

	db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(sqlite.MemoryPath), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate(ctx))
	repos := *db.Repositories()

	store, err := storage.NewFilesystemStore(storage.FilesystemConfig{RootDir: t.TempDir()}, logger)
	require.NoError(t, err)

	cache := memory.NewCache(time.Minute)
	t.Cleanup(cache.Stop)

	keys, err := auth.NewKeys("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
	require.NoError(t, err)

	f := &fixture{
		repos:  repos,
		store:  store,
		locker: lock.NewMemoryLocker(),
		tokens: auth.NewDownloadTokens(keys.Download, time.Hour),
	}
	f.resolver = NewResolver(repos, cache, time.Minute, logger)
	authorizer := NewAuthorizer(repos.Membership, repos.ServiceAccount)
	f.files = NewFileService(f.resolver, authorizer, repos.File, store, f.locker, f.tokens, nil, logger, FileServiceConfig{
		MaxArtifactSize: 1 << 20,
		UploadTimeout:   time.Minute,
		Lock:            lock.Options{TTL: time.Minute, MaxRetries: 0, RetryDelay: time.Millisecond},
	})
	f.boxes = NewBoxService(f.resolver, authorizer, repos, logger)
	f.catalog = NewCatalogService(repos, logger)

	_, err = f.catalog.EnsureChain(ctx, EnsureChainInput{Address: testAddr(), OwnerID: ownerID})
	require.NoError(t, err)
	require.NoError(t, f.catalog.AddMember(ctx, "acme", adminID, domain.RoleAdmin))
	require.NoError(t, f.catalog.AddMember(ctx, "acme", memberID, domain.RoleUser))
	f.sa, err = f.catalog.CreateServiceAccount(ctx, "acme", "ci", 0)
	require.NoError(t, err)

	return f
}

func (f *fixture) upload(t *testing.T, addr domain.Address, body string) *UploadOutput {
	t.Helper()
	out, err := f.files.Upload(context.Background(), UploadInput{
		Address:  addr,
		Identity: auth.Identity{ID: adminID},
		Body:     strings.NewReader(body),
		Size:     int64(len(body)),
	})
	require.NoError(t, err)
	return out
}

// =============================================================================
// Resolver
// =============================================================================

func TestResolve_NamesFirstMissingLevel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bound, err := f.resolver.Resolve(ctx, testAddr(), ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, testAddr(), bound.Address)
	assert.Nil(t, bound.File)

	tests := []struct {
		level  domain.Level
		mutate func(a *domain.Address)
	}{
		{domain.LevelOrganization, func(a *domain.Address) { a.Organization = "nope"; a.Architecture = "nope" }},
		{domain.LevelBox, func(a *domain.Address) { a.Box = "nope"; a.Version = "nope" }},
		{domain.LevelVersion, func(a *domain.Address) { a.Version = "v9"; a.Provider = "nope" }},
		{domain.LevelProvider, func(a *domain.Address) { a.Provider = "libvirt" }},
		{domain.LevelArchitecture, func(a *domain.Address) { a.Architecture = "arm64" }},
	}
	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			addr := testAddr()
			tt.mutate(&addr)
			_, err := f.resolver.Resolve(ctx, addr, ResolveOptions{})
			var nf *domain.NotFoundError
			require.True(t, errors.As(err, &nf), "got %v", err)
			assert.Equal(t, tt.level, nf.Level)
		})
	}
}

func TestResolve_ProtocolFallbacks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	addr := testAddr()
	addr.Box = "DEBIAN12"
	addr.Version = "1.0.0"

	_, err := f.resolver.Resolve(ctx, addr, ResolveOptions{})
	assert.ErrorIs(t, err, domain.ErrBoxNotFound)

	bound, err := f.resolver.Resolve(ctx, addr, ProtocolResolve)
	require.NoError(t, err)
	assert.Equal(t, testAddr(), bound.Address)
}

// =============================================================================
// Upload
// =============================================================================

func TestUpload_StoresFileAndRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out, err := f.files.Upload(ctx, UploadInput{
		Address:      testAddr(),
		Identity:     auth.Identity{ID: adminID},
		Body:         strings.NewReader("hello"),
		Size:         5,
		Checksum:     "2CF24DBA5FB0A30E26E83B2AC5B9E29E1B161E5C1FA7425E73043362938B9824",
		ChecksumType: "SHA256",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), out.File.FileSize)
	assert.Equal(t, "vagrant.box", out.File.FileName)
	require.NotNil(t, out.ChecksumVerified)
	assert.True(t, *out.ChecksumVerified)
	assert.False(t, out.Relocated)

	bound, err := f.resolver.Resolve(ctx, testAddr(), ResolveOptions{})
	require.NoError(t, err)
	require.NotNil(t, bound.File)
	assert.Equal(t, "sha256", bound.File.ChecksumTypeValue())

	exists, err := f.store.Exists(ctx, testAddr())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpload_ChecksumMismatchIsReported(t *testing.T) {
	f := newFixture(t)

	out, err := f.files.Upload(context.Background(), UploadInput{
		Address:      testAddr(),
		Identity:     auth.Identity{ID: adminID},
		Body:         strings.NewReader("hello"),
		Size:         -1,
		Checksum:     "deadbeef",
		ChecksumType: "md5",
	})
	require.NoError(t, err)
	require.NotNil(t, out.ChecksumVerified)
	assert.False(t, *out.ChecksumVerified)
	assert.Equal(t, "deadbeef", out.File.ChecksumValue())
}

func TestUpload_NullChecksumClearsBoth(t *testing.T) {
	f := newFixture(t)

	for _, ct := range []string{"NULL", "null"} {
		out, err := f.files.Upload(context.Background(), UploadInput{
			Address:      testAddr(),
			Identity:     auth.Identity{ID: adminID},
			Body:         strings.NewReader("x"),
			Size:         1,
			Checksum:     "abc",
			ChecksumType: ct,
		})
		require.NoError(t, err)
		assert.Nil(t, out.File.Checksum)
		assert.Nil(t, out.File.ChecksumType)
		assert.Nil(t, out.ChecksumVerified)
	}
}

func TestUpload_ReplaceKeepsRowAndCount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.upload(t, testAddr(), "first")
	bound, err := f.resolver.Resolve(ctx, testAddr(), ResolveOptions{})
	require.NoError(t, err)
	require.NoError(t, f.repos.File.IncrementDownloadCount(ctx, bound.Architecture.ID))

	second := f.upload(t, testAddr(), "second!")
	assert.Equal(t, first.File.ID, second.File.ID)
	assert.Equal(t, int64(7), second.File.FileSize)
	assert.Equal(t, int64(1), second.File.DownloadCount)
}

func TestUpload_SizeExceeded(t *testing.T) {
	f := newFixture(t)

	_, err := f.files.Upload(context.Background(), UploadInput{
		Address:  testAddr(),
		Identity: auth.Identity{ID: adminID},
		Body:     bytes.NewReader(make([]byte, 2<<20)),
		Size:     -1,
	})
	assert.ErrorIs(t, err, storage.ErrSizeExceeded)

	bound, err := f.resolver.Resolve(context.Background(), testAddr(), ResolveOptions{})
	require.NoError(t, err)
	assert.Nil(t, bound.File)
}

func TestUpload_MissingArchitectureIsNotFound(t *testing.T) {
	f := newFixture(t)
	addr := testAddr()
	addr.Architecture = "arm64"

	_, err := f.files.Upload(context.Background(), UploadInput{
		Address:  addr,
		Identity: auth.Identity{ID: adminID},
		Body:     strings.NewReader("x"),
		Size:     1,
	})
	assert.ErrorIs(t, err, domain.ErrArchitectureNotFound)
}

func TestUpload_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		id      auth.Identity
		wantErr error
	}{
		{"anonymous", auth.AnonymousIdentity, auth.ErrUnauthenticated},
		{"plain member", auth.Identity{ID: memberID}, domain.ErrForbidden},
		{"outsider", auth.Identity{ID: 99}, domain.ErrForbidden},
		{"service account", auth.Identity{ID: f.sa.ID, IsServiceAccount: true}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.files.Upload(ctx, UploadInput{
				Address:  testAddr(),
				Identity: tt.id,
				Body:     strings.NewReader("x"),
				Size:     1,
			})
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestUpload_LockedArtifactConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ok, err := f.locker.Acquire(ctx, lock.Keys.Artifact(testAddr()), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.files.Upload(ctx, UploadInput{
		Address:  testAddr(),
		Identity: auth.Identity{ID: adminID},
		Body:     strings.NewReader("x"),
		Size:     1,
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

// countingLocker counts owned extensions of a memory locker.
type countingLocker struct {
	*lock.MemoryLocker
	extends atomic.Int64
}

func (c *countingLocker) ExtendOwned(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	c.extends.Add(1)
	return c.MemoryLocker.ExtendOwned(ctx, key, token, ttl)
}

func TestKeepAlive_StopWaitsForRefresher(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	locker := &countingLocker{MemoryLocker: lock.NewMemoryLocker()}
	opts := lock.Options{TTL: 20 * time.Millisecond}
	svc := NewFileService(f.resolver, nil, f.repos.File, f.store, locker, f.tokens, nil, zerolog.Nop(), FileServiceConfig{Lock: opts})

	held, err := lock.AcquireAll(ctx, locker, opts, lock.Keys.Artifact(testAddr()))
	require.NoError(t, err)

	stop := svc.keepAlive(ctx, held)
	require.Eventually(t, func() bool { return locker.extends.Load() > 0 }, time.Second, 5*time.Millisecond)
	stop()
	held.Release(ctx)

	after := locker.extends.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, locker.extends.Load(), "no refresh may run after stop returns")

	stillHeld, err := locker.IsHeld(ctx, lock.Keys.Artifact(testAddr()))
	require.NoError(t, err)
	assert.False(t, stillHeld)
}

func TestLockError(t *testing.T) {
	assert.ErrorIs(t, lockError(lock.ErrNotAcquired), domain.ErrConflict)

	backend := errors.New("redis down")
	err := lockError(backend)
	assert.ErrorIs(t, err, backend)
	assert.NotErrorIs(t, err, domain.ErrConflict)
}

func TestUpload_PostWithoutPayload(t *testing.T) {
	f := newFixture(t)
	_, err := f.files.Upload(context.Background(), UploadInput{
		Address:  testAddr(),
		Identity: auth.Identity{ID: adminID},
		Size:     -1,
	})
	assert.ErrorIs(t, err, ErrNoPayload)
}

// =============================================================================
// Replace with relocation
// =============================================================================

func armAddr() domain.Address {
	a := testAddr()
	a.Architecture = "arm64"
	return a
}

func TestReplace_MetadataOnlyRelocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.catalog.EnsureChain(ctx, EnsureChainInput{Address: armAddr()})
	require.NoError(t, err)

	first := f.upload(t, testAddr(), "payload")

	out, err := f.files.Upload(ctx, UploadInput{
		Address:      testAddr(),
		Identity:     auth.Identity{ID: adminID},
		Size:         -1,
		Replace:      true,
		Target:       domain.Address{Architecture: "arm64"},
		Checksum:     "abc",
		ChecksumType: "SHA1",
	})
	require.NoError(t, err)
	assert.True(t, out.Relocated)
	assert.Equal(t, armAddr(), out.Address)
	assert.Equal(t, first.File.ID, out.File.ID)

	src, err := f.resolver.Resolve(ctx, testAddr(), ResolveOptions{})
	require.NoError(t, err)
	assert.Nil(t, src.File)
	dst, err := f.resolver.Resolve(ctx, armAddr(), ResolveOptions{})
	require.NoError(t, err)
	require.NotNil(t, dst.File)
	assert.Equal(t, "sha1", dst.File.ChecksumTypeValue())

	exists, _ := f.store.Exists(ctx, testAddr())
	assert.False(t, exists)
	exists, _ = f.store.Exists(ctx, armAddr())
	assert.True(t, exists)
}

func TestReplace_RelocationWithPayload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.catalog.EnsureChain(ctx, EnsureChainInput{Address: armAddr()})
	require.NoError(t, err)

	f.upload(t, testAddr(), "old")

	out, err := f.files.Upload(ctx, UploadInput{
		Address:  testAddr(),
		Identity: auth.Identity{ID: adminID},
		Body:     strings.NewReader("brand new"),
		Size:     9,
		Replace:  true,
		Target:   domain.Address{Architecture: "arm64"},
	})
	require.NoError(t, err)
	assert.True(t, out.Relocated)
	assert.Equal(t, int64(9), out.File.FileSize)

	exists, _ := f.store.Exists(ctx, testAddr())
	assert.False(t, exists)
}

func TestReplace_OccupiedTargetConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.catalog.EnsureChain(ctx, EnsureChainInput{Address: armAddr()})
	require.NoError(t, err)

	f.upload(t, testAddr(), "a")
	f.upload(t, armAddr(), "b")

	_, err = f.files.Upload(ctx, UploadInput{
		Address:  testAddr(),
		Identity: auth.Identity{ID: adminID},
		Size:     -1,
		Replace:  true,
		Target:   domain.Address{Architecture: "arm64"},
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestReplace_MissingTargetIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.upload(t, testAddr(), "a")

	_, err := f.files.Upload(context.Background(), UploadInput{
		Address:  testAddr(),
		Identity: auth.Identity{ID: adminID},
		Size:     -1,
		Replace:  true,
		Target:   domain.Address{Provider: "libvirt"},
	})
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

// =============================================================================
// Download
// =============================================================================

func TestDownload_TokenFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upload(t, testAddr(), "payload")

	link, _, err := f.files.DownloadLink(ctx, LinkInput{Address: testAddr(), Identity: auth.Identity{ID: memberID}, BaseURL: "http://boxes.local/"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "http://boxes.local/api/organization/acme/box/debian12/version/v1.0.0/provider/virtualbox/architecture/amd64/file/download?token="))

	token, _, err := f.tokens.Issue(auth.Identity{ID: memberID}, testAddr())
	require.NoError(t, err)

	d, err := f.files.OpenDownload(ctx, DownloadInput{Address: testAddr(), Token: token})
	require.NoError(t, err)
	defer d.Close()

	body, err := io.ReadAll(io.NewSectionReader(d.Artifact, 0, d.Artifact.Size()))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(body))

	f.files.RecordDownload(ctx, d, int64(len(body)), true)
	bound, err := f.resolver.Resolve(ctx, testAddr(), ResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), bound.File.DownloadCount)
}

func TestDownload_TokenForOtherAddressForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.catalog.EnsureChain(ctx, EnsureChainInput{Address: armAddr()})
	require.NoError(t, err)
	f.upload(t, testAddr(), "a")
	f.upload(t, armAddr(), "b")

	token, _, err := f.tokens.Issue(auth.Identity{ID: memberID}, armAddr())
	require.NoError(t, err)

	_, err = f.files.OpenDownload(ctx, DownloadInput{Address: testAddr(), Token: token})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.ErrorIs(t, err, auth.ErrTokenScopeMismatch)
}

func TestDownload_WithoutToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upload(t, testAddr(), "a")

	_, err := f.files.OpenDownload(ctx, DownloadInput{Address: testAddr(), Identity: auth.Identity{ID: memberID}})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// the distribution client authenticates with its session instead
	d, err := f.files.OpenDownload(ctx, DownloadInput{Address: testAddr(), Identity: auth.Identity{ID: memberID}, Client: true})
	require.NoError(t, err)
	d.Close()

	_, err = f.files.OpenDownload(ctx, DownloadInput{Address: testAddr(), Identity: auth.AnonymousIdentity, Client: true})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestDownload_PublicBox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pub := domain.Address{Organization: "acme", Box: "alpine", Version: "3.20", Provider: "libvirt", Architecture: "amd64"}
	_, err := f.catalog.EnsureChain(ctx, EnsureChainInput{Address: pub, Public: true})
	require.NoError(t, err)
	f.upload(t, pub, "public")

	d, err := f.files.OpenDownload(ctx, DownloadInput{Address: pub, Identity: auth.AnonymousIdentity})
	require.NoError(t, err)
	d.Close()
}

func TestDownload_MissingFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, _, err := f.tokens.Issue(auth.Identity{ID: memberID}, testAddr())
	require.NoError(t, err)
	_, err = f.files.OpenDownload(ctx, DownloadInput{Address: testAddr(), Token: token})
	assert.ErrorIs(t, err, domain.ErrFileNotFound)

	// row present, file gone from disk
	f.upload(t, testAddr(), "x")
	path, err := storage.ComputePath(storage.DefaultPathConfig(f.store.Root()), testAddr())
	require.NoError(t, err)
	require.NoError(t, os.Remove(path))

	_, err = f.files.OpenDownload(ctx, DownloadInput{Address: testAddr(), Token: token})
	assert.ErrorIs(t, err, domain.ErrFileNotFound)
}

func TestInfo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.files.Info(ctx, LinkInput{Address: testAddr(), Identity: auth.Identity{ID: memberID}})
	assert.ErrorIs(t, err, domain.ErrFileNotFound)

	f.upload(t, testAddr(), "abc")
	info, err := f.files.Info(ctx, LinkInput{Address: testAddr(), Identity: auth.Identity{ID: memberID}, BaseURL: "http://h"})
	require.NoError(t, err)
	assert.Equal(t, "vagrant.box", info.FileName)
	assert.Equal(t, int64(3), info.FileSize)
	assert.Contains(t, info.DownloadURL, "token=")

	_, err = f.files.Info(ctx, LinkInput{Address: testAddr(), Identity: auth.Identity{ID: 99}})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

// =============================================================================
// Delete
// =============================================================================

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upload(t, testAddr(), "x")

	res, err := f.files.Delete(ctx, testAddr(), auth.Identity{ID: adminID})
	require.NoError(t, err)
	assert.Equal(t, &DeleteResult{FileDeleted: true, RecordDeleted: true, DirectoryRemoved: true}, res)

	bound, err := f.resolver.Resolve(ctx, testAddr(), ResolveOptions{})
	require.NoError(t, err)
	assert.Nil(t, bound.File)
}

func TestDelete_FileAlreadyMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.upload(t, testAddr(), "x")

	dir, err := storage.SlotDir(storage.DefaultPathConfig(f.store.Root()), testAddr())
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(filepath.Dir(dir)))

	res, err := f.files.Delete(ctx, testAddr(), auth.Identity{ID: adminID})
	require.NoError(t, err)
	assert.False(t, res.FileDeleted)
	assert.True(t, res.RecordDeleted)
	assert.False(t, res.Partial)

	// nothing left at all still succeeds
	res, err = f.files.Delete(ctx, testAddr(), auth.Identity{ID: adminID})
	require.NoError(t, err)
	assert.False(t, res.RecordDeleted)
}

func TestDelete_MissingArchitecture(t *testing.T) {
	f := newFixture(t)
	_, err := f.files.Delete(context.Background(), armAddr(), auth.Identity{ID: adminID})
	assert.ErrorIs(t, err, domain.ErrArchitectureNotFound)
}

// =============================================================================
// Box tree
// =============================================================================

func TestBoxTree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.catalog.EnsureChain(ctx, EnsureChainInput{Address: armAddr()})
	require.NoError(t, err)
	f.upload(t, testAddr(), "x")

	tree, err := f.boxes.Tree(ctx, "acme", "Debian12", true, auth.Identity{ID: memberID})
	require.NoError(t, err)
	assert.Equal(t, "debian12", tree.Box.Name)
	require.Len(t, tree.Versions, 1)
	require.Len(t, tree.Versions[0].Providers, 1)
	archs := tree.Versions[0].Providers[0].Architectures
	require.Len(t, archs, 2)
	assert.NotNil(t, archs[0].File)
	assert.Nil(t, archs[1].File)

	_, err = f.boxes.Tree(ctx, "acme", "debian12", false, auth.AnonymousIdentity)
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)
}

// =============================================================================
// Sweeper
// =============================================================================

func TestSweeper_RunOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	dir, err := storage.SlotDir(storage.DefaultPathConfig(f.store.Root()), testAddr())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	stale := filepath.Join(dir, ".upload-abc")
	require.NoError(t, os.WriteFile(stale, []byte("partial"), 0o644))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	sw := NewSweeper(f.store, f.locker, nil, zerolog.Nop(), SweeperConfig{Interval: time.Hour, GracePeriod: 25 * time.Hour})
	res := sw.RunOnce(ctx)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, int64(7), res.Bytes)
	assert.NoFileExists(t, stale)

	// a held sweeper lock skips the run
	ok, err := f.locker.Acquire(ctx, lock.Keys.Sweeper(), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, sw.RunOnce(ctx).Skipped)
}

func TestSweeper_RunStopsOnContext(t *testing.T) {
	f := newFixture(t)
	sw := NewSweeper(f.store, f.locker, nil, zerolog.Nop(), SweeperConfig{Interval: time.Hour, GracePeriod: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
