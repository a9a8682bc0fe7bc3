package handler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/boxvault/internal/auth"
	"github.com/prn-tf/boxvault/internal/cache/memory"
	"github.com/prn-tf/boxvault/internal/domain"
	"github.com/prn-tf/boxvault/internal/gateway"
	"github.com/prn-tf/boxvault/internal/lock"
	"github.com/prn-tf/boxvault/internal/repository/sqlite"
	"github.com/prn-tf/boxvault/internal/service"
	"github.com/prn-tf/boxvault/internal/storage"
)

const (
	adminID  int64 = 1
	memberID int64 = 2
	ownerID  int64 = 7

	vagrantUA = "Vagrant/2.4.1 (+https://www.vagrantup.com; ruby3.3.0)"
	baseURL   = "https://boxes.example.com"
)

type testEnv struct {
	handler  http.Handler
	store    *storage.FilesystemStore
	tokens   *auth.DownloadTokens
	sessions *auth.SessionManager
	files    *service.FileService
	catalog  *service.CatalogService
}

func testAddr() domain.Address {
	return domain.Address{Organization: "acme", Box: "debian12", Version: "v1.0.0", Provider: "virtualbox", Architecture: "amd64"}
}

func filePath(addr domain.Address, action string) string {
	return service.ArtifactPath(addr) + "/file/" + action
}

func newTestEnv(t *testing.T) *testEnv {
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

	env := &testEnv{
		store:    store,
		tokens:   auth.NewDownloadTokens(keys.Download, time.Hour),
		sessions: auth.NewSessionManager(keys.Session),
	}

	resolver := service.NewResolver(repos, cache, time.Minute, logger)
	authorizer := service.NewAuthorizer(repos.Membership, repos.ServiceAccount)
	env.files = service.NewFileService(resolver, authorizer, repos.File, store, lock.NewMemoryLocker(), env.tokens, nil, logger, service.FileServiceConfig{
		MaxArtifactSize: 1 << 20,
		UploadTimeout:   time.Minute,
		Lock:            lock.Options{TTL: time.Minute, MaxRetries: 0, RetryDelay: time.Millisecond},
	})
	env.catalog = service.NewCatalogService(repos, logger)

	detector := gateway.NewDetector(gateway.DefaultClientPrefix, logger)
	router := NewRouter(RouterConfig{
		FileHandler: NewFileHandler(FileHandlerConfig{
			Files:         env.files,
			Detector:      detector,
			BaseURL:       baseURL,
			UploadTimeout: time.Minute,
			Logger:        logger,
		}),
		BoxHandler: NewBoxHandler(BoxHandlerConfig{
			Boxes:      service.NewBoxService(resolver, authorizer, repos, logger),
			Serializer: gateway.NewSerializer(logger),
			BaseURL:    baseURL,
			Logger:     logger,
		}),
		Detector:       detector,
		AuthMiddleware: auth.Middleware(env.sessions, auth.DefaultConfig(), logger),
		Database:       db,
		Storage:        HealthCheckFunc(store.HealthCheck),
		Logger:         logger,
	})
	env.handler = router.Handler()

	_, err = env.catalog.EnsureChain(ctx, service.EnsureChainInput{Address: testAddr(), OwnerID: ownerID, Description: "Debian 12"})
	require.NoError(t, err)
	require.NoError(t, env.catalog.AddMember(ctx, "acme", adminID, domain.RoleAdmin))
	require.NoError(t, env.catalog.AddMember(ctx, "acme", memberID, domain.RoleUser))

	return env
}

func (e *testEnv) session(t *testing.T, id int64) string {
	t.Helper()
	tok, err := e.sessions.Issue(auth.Identity{ID: id}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) put(t *testing.T, addr domain.Address, payload []byte) {
	t.Helper()
	_, err := e.files.Upload(context.Background(), service.UploadInput{
		Address:  addr,
		Identity: auth.Identity{ID: adminID},
		Body:     bytes.NewReader(payload),
		Size:     int64(len(payload)),
	})
	require.NoError(t, err)
}

func (e *testEnv) token(t *testing.T, addr domain.Address) string {
	t.Helper()
	tok, _, err := e.tokens.Issue(auth.Identity{ID: memberID}, addr)
	require.NoError(t, err)
	return tok
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func payload2048() []byte {
	return bytes.Repeat([]byte("0123456789abcdef"), 128)
}

// =============================================================================
// Range streaming
// =============================================================================

func TestDownload_Ranges(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, testAddr(), payload2048())
	target := filePath(testAddr(), "download") + "?token=" + url.QueryEscape(env.token(t, testAddr()))

	t.Run("partial", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Range", "bytes=0-1023")
		rec := env.do(req)

		require.Equal(t, http.StatusPartialContent, rec.Code, rec.Body.String())
		assert.Equal(t, "bytes 0-1023/2048", rec.Header().Get("Content-Range"))
		assert.Equal(t, "1024", rec.Header().Get("Content-Length"))
		assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
		assert.Equal(t, payload2048()[:1024], rec.Body.Bytes())
	})

	t.Run("unsatisfiable", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Range", "bytes=5000-")
		rec := env.do(req)

		assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
		assert.Equal(t, "bytes */2048", rec.Header().Get("Content-Range"))
	})

	t.Run("full", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodGet, target, nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2048", rec.Header().Get("Content-Length"))
		assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
		assert.Empty(t, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, payload2048(), rec.Body.Bytes())
	})

	t.Run("open ended tail", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("Range", "bytes=2000-")
		rec := env.do(req)

		require.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "bytes 2000-2047/2048", rec.Header().Get("Content-Range"))
		assert.Len(t, rec.Body.Bytes(), 48)
	})
}

func TestDownload_CountsEveryCompletedStream(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, testAddr(), payload2048())
	target := filePath(testAddr(), "download") + "?token=" + url.QueryEscape(env.token(t, testAddr()))

	for _, rng := range []string{"", "bytes=0-99", "bytes=100-199"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if rng != "" {
			req.Header.Set("Range", rng)
		}
		require.Less(t, env.do(req).Code, 300)
	}

	info, err := env.files.Info(context.Background(), service.LinkInput{Address: testAddr(), Identity: auth.Identity{ID: adminID}, BaseURL: baseURL})
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.DownloadCount)
}

func TestDownload_RangeOnEmptyFile(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, testAddr(), []byte{})
	target := filePath(testAddr(), "download") + "?token=" + url.QueryEscape(env.token(t, testAddr()))

	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.Header.Set("Range", "bytes=0-")
	rec := env.do(req)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */0", rec.Header().Get("Content-Range"))

	rec = env.do(httptest.NewRequest(http.MethodGet, target, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Body.Bytes())
}

func TestParseRange(t *testing.T) {
	tests := []struct {
		header  string
		size    int64
		want    byteRange
		partial bool
		err     error
	}{
		{"", 2048, byteRange{}, false, nil},
		{"items=0-5", 2048, byteRange{}, false, nil},
		{"bytes=0-1023", 2048, byteRange{0, 1023}, true, nil},
		{"bytes=100-", 2048, byteRange{100, 2047}, true, nil},
		{"bytes=-500", 2048, byteRange{0, 500}, true, nil},
		{"bytes=10-99999", 2048, byteRange{10, 2047}, true, nil},
		{"bytes=900-100", 2048, byteRange{0, 100}, true, nil},
		{"bytes=abc-10", 2048, byteRange{0, 10}, true, nil},
		{"bytes=0-10,20-30", 2048, byteRange{0, 10}, true, nil},
		{"bytes=2048-", 2048, byteRange{}, false, errRangeUnsatisfiable},
		{"bytes=5000-6000", 2048, byteRange{}, false, errRangeUnsatisfiable},
		{"bytes=0-", 0, byteRange{}, false, errRangeUnsatisfiable},
		{"", 0, byteRange{}, false, nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.header, tt.size), func(t *testing.T) {
			got, partial, err := parseRange(tt.header, tt.size)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.partial, partial)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// Download authorization
// =============================================================================

func TestDownload_TokenScope(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, testAddr(), []byte("box"))
	tok := env.token(t, testAddr())

	other := testAddr()
	other.Provider = "libvirt"
	rec := env.do(httptest.NewRequest(http.MethodGet, filePath(other, "download")+"?token="+url.QueryEscape(tok), nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, CodeForbidden, body.Error)
	assert.Equal(t, "scope", body.Details["reason"])
}

func TestDownload_MissingTokenOnPrivateBox(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, testAddr(), []byte("box"))

	rec := env.do(httptest.NewRequest(http.MethodGet, filePath(testAddr(), "download"), nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "missing", decodeError(t, rec).Details["reason"])
}

func TestProtocolDownload(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, testAddr(), []byte("vagrant box bytes"))
	target := "/acme/boxes/debian12/versions/1.0.0/providers/virtualbox/amd64/vagrant.box"

	t.Run("member session substitutes for token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("User-Agent", vagrantUA)
		req.Header.Set(auth.DefaultSessionHeader, env.session(t, memberID))
		rec := env.do(req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="vagrant.box"`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, "vagrant box bytes", rec.Body.String())
	})

	t.Run("non member is forbidden", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("User-Agent", vagrantUA)
		req.Header.Set(auth.DefaultSessionHeader, env.session(t, 99))
		assert.Equal(t, http.StatusForbidden, env.do(req).Code)
	})

	t.Run("browser without token is forbidden", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, env.do(httptest.NewRequest(http.MethodGet, target, nil)).Code)
	})
}

// =============================================================================
// Protocol metadata
// =============================================================================

func TestProtocolMetadata_EchoesRequestedName(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, testAddr(), []byte("box"))

	for _, path := range []string{"/acme/debian12", "/acme/boxes/debian12"} {
		t.Run(path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.Header.Set("User-Agent", vagrantUA)
			req.Header.Set(auth.DefaultSessionHeader, env.session(t, memberID))
			rec := env.do(req)

			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var md gateway.Metadata
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &md))
			assert.Equal(t, "acme/debian12", md.Name)
			assert.Equal(t, "Debian 12", md.Description)
			require.Len(t, md.Versions, 1)
			assert.Equal(t, "1.0.0", md.Versions[0].Version)
			require.Len(t, md.Versions[0].Providers, 1)
			assert.Equal(t, baseURL+"/acme/boxes/debian12/versions/1.0.0/providers/virtualbox/amd64/vagrant.box", md.Versions[0].Providers[0].URL)
			assert.Equal(t, "sha256", md.Versions[0].Providers[0].ChecksumType)
		})
	}
}

func TestProtocolMetadata_CaseFoldedBox(t *testing.T) {
	env := newTestEnv(t)
	addr := testAddr()
	addr.Box = "Ubuntu"
	_, err := env.catalog.EnsureChain(context.Background(), service.EnsureChainInput{Address: addr, OwnerID: ownerID, Public: true})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/acme/ubuntu", nil)
	req.Header.Set("User-Agent", vagrantUA)
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var md gateway.Metadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &md))
	assert.Equal(t, "acme/ubuntu", md.Name)
	assert.Equal(t, "acme/Ubuntu", rec.Header().Get(CanonicalNameHeader))
}

func TestBoxLookup_GenericProjection(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, testAddr(), []byte("box"))

	req := httptest.NewRequest(http.MethodGet, "/api/organization/acme/box/debian12", nil)
	req.Header.Set(auth.DefaultSessionHeader, env.session(t, memberID))
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var view boxView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "debian12", view.Name)
	require.Len(t, view.Versions, 1)
	assert.Equal(t, "v1.0.0", view.Versions[0].VersionNumber)
	require.NotNil(t, view.Versions[0].Providers[0].Architectures[0].File)
	assert.Equal(t, int64(3), view.Versions[0].Providers[0].Architectures[0].File.FileSize)
}

func TestBoxLookup_AnonymousPrivate(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/organization/acme/box/debian12", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =============================================================================
// Upload
// =============================================================================

func multipartBody(t *testing.T, fields [][2]string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range fields {
		require.NoError(t, mw.WriteField(f[0], f[1]))
	}
	if payload != nil {
		fw, err := mw.CreateFormFile("file", "vagrant.box")
		require.NoError(t, err)
		_, err = fw.Write(payload)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload_Multipart(t *testing.T) {
	env := newTestEnv(t)
	payload := []byte("multipart payload")
	sum := sha256.Sum256(payload)

	body, contentType := multipartBody(t, [][2]string{
		{"checksum", hex.EncodeToString(sum[:])},
		{"checksumType", "SHA256"},
	}, payload)
	req := httptest.NewRequest(http.MethodPost, filePath(testAddr(), "upload"), body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(auth.DefaultSessionHeader, env.session(t, adminID))
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "vagrant.box", resp.FileName)
	assert.Equal(t, int64(len(payload)), resp.FileSize)
	assert.Equal(t, testAddr(), resp.Address)
	require.NotNil(t, resp.ChecksumVerified)
	assert.True(t, *resp.ChecksumVerified)
	assert.False(t, resp.Relocated)
}

func TestUpload_RawBodyTooLarge(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, filePath(testAddr(), "upload"), bytes.NewReader(make([]byte, 2<<20)))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set(auth.DefaultSessionHeader, env.session(t, adminID))
	rec := env.do(req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, CodeFileTooLarge, body.Error)
	assert.EqualValues(t, 1<<20, body.Details["limit"])
}

func TestUpload_MissingArchitecture(t *testing.T) {
	env := newTestEnv(t)
	addr := testAddr()
	addr.Architecture = "arm64"

	req := httptest.NewRequest(http.MethodPost, filePath(addr, "upload"), strings.NewReader("payload"))
	req.Header.Set(auth.DefaultSessionHeader, env.session(t, adminID))
	rec := env.do(req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, CodeNotFound, body.Error)
	assert.Equal(t, "architecture", body.Details["level"])
}

func TestUpload_RequiresIdentity(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodPost, filePath(testAddr(), "upload"), strings.NewReader("payload")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, filePath(testAddr(), "upload"), strings.NewReader("payload"))
	req.Header.Set(auth.DefaultSessionHeader, "not-a-token")
	rec = env.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUnauthorized, decodeError(t, rec).Error)

	req = httptest.NewRequest(http.MethodPost, filePath(testAddr(), "upload"), strings.NewReader("payload"))
	req.Header.Set(auth.DefaultSessionHeader, env.session(t, memberID))
	assert.Equal(t, http.StatusForbidden, env.do(req).Code)
}

func TestUpload_PutWithoutPayloadRelocates(t *testing.T) {
	env := newTestEnv(t)
	target := testAddr()
	target.Architecture = "arm64"
	_, err := env.catalog.EnsureChain(context.Background(), service.EnsureChainInput{Address: target, OwnerID: ownerID})
	require.NoError(t, err)
	env.put(t, testAddr(), []byte("relocate me"))

	body, contentType := multipartBody(t, [][2]string{{"newArchitectureName", "arm64"}}, nil)
	req := httptest.NewRequest(http.MethodPut, filePath(testAddr(), "upload"), body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(auth.DefaultSessionHeader, env.session(t, adminID))
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Relocated)
	assert.Equal(t, target, resp.Address)

	exists, err := env.store.Exists(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestUpload_PostWithoutPayload(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, [][2]string{{"checksum", "abc"}}, nil)
	req := httptest.NewRequest(http.MethodPost, filePath(testAddr(), "upload"), body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(auth.DefaultSessionHeader, env.session(t, adminID))
	rec := env.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Info, links and delete
// =============================================================================

func TestInfo(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, testAddr(), []byte("info"))

	req := httptest.NewRequest(http.MethodGet, filePath(testAddr(), "info"), nil)
	req.Header.Set(auth.DefaultSessionHeader, env.session(t, memberID))
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp infoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "vagrant.box", resp.FileName)
	assert.Equal(t, int64(4), resp.FileSize)
	assert.True(t, strings.HasPrefix(resp.DownloadURL, baseURL+filePath(testAddr(), "download")+"?token="), resp.DownloadURL)

	// The minted URL downloads the file.
	u, err := url.Parse(resp.DownloadURL)
	require.NoError(t, err)
	dl := env.do(httptest.NewRequest(http.MethodGet, u.RequestURI(), nil))
	require.Equal(t, http.StatusOK, dl.Code)
	assert.Equal(t, "info", dl.Body.String())
}

func TestDownloadLink(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, testAddr(), []byte("link"))

	req := httptest.NewRequest(http.MethodPost, filePath(testAddr(), "get-download-link"), nil)
	req.Header.Set("Authorization", "Bearer "+env.session(t, adminID))
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp linkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.DownloadURL, "token=")
	assert.WithinDuration(t, time.Now().Add(time.Hour), resp.ExpiresAt, time.Minute)
}

func TestDelete_FileAlreadyMissing(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, testAddr(), []byte("gone"))
	_, err := env.store.Remove(context.Background(), testAddr())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, filePath(testAddr(), "delete"), nil)
	req.Header.Set(auth.DefaultSessionHeader, env.session(t, adminID))
	rec := env.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp deleteResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.FileDeleted)
	assert.True(t, resp.RecordDeleted)
	assert.True(t, resp.DirectoryRemoved)
	assert.False(t, resp.Partial)

	info := httptest.NewRequest(http.MethodGet, filePath(testAddr(), "info"), nil)
	info.Header.Set(auth.DefaultSessionHeader, env.session(t, adminID))
	assert.Equal(t, http.StatusNotFound, env.do(info).Code)
}

// =============================================================================
// Router
// =============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Checks["database"])
	assert.Equal(t, "ok", resp.Checks["storage"])
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/nope/a/b/c", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).Error)
}

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		name   string
		op     operation
		err    error
		status int
		code   string
	}{
		{"not found", opDownload, domain.NewNotFoundError(domain.LevelBox, "x"), http.StatusNotFound, CodeNotFound},
		{"forbidden", opDownload, domain.ErrForbidden, http.StatusForbidden, CodeForbidden},
		{"unauthenticated", opInfo, auth.ErrUnauthenticated, http.StatusUnauthorized, CodeUnauthorized},
		{"invalid name", opUpload, domain.NewDomainError(domain.ErrInvalidName, "bad", "x"), http.StatusBadRequest, CodeBadRequest},
		{"conflict", opUpload, domain.ErrConflict, http.StatusConflict, CodeConflict},
		{"timeout", opUpload, &storage.StreamError{Kind: storage.ErrTimeout, Written: 10, Elapsed: time.Second}, http.StatusRequestTimeout, CodeUploadTimeout},
		{"disk full", opUpload, &storage.StreamError{Kind: storage.ErrDiskFull}, http.StatusInsufficientStorage, CodeNoStorageSpace},
		{"transport", opUpload, &storage.StreamError{Kind: storage.ErrTransportClosed}, http.StatusInternalServerError, CodeUploadError},
		{"relocation", opUpload, service.ErrRelocationFailed, http.StatusInternalServerError, CodeUploadError},
		{"upload other", opUpload, io.ErrClosedPipe, http.StatusInternalServerError, CodeUploadError},
		{"other", opInfo, io.ErrClosedPipe, http.StatusInternalServerError, CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, zerolog.Nop(), tt.op, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.code, body.Error)
			assert.NotContains(t, body.Message, "/")
		})
	}
}
