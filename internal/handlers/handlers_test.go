package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"ovpnadmin/internal/auth"
	"ovpnadmin/internal/database"
	"ovpnadmin/internal/middleware"
	"ovpnadmin/internal/models"
	"ovpnadmin/internal/services"
	"ovpnadmin/internal/vpncertd"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

const (
	testCookie = "ovpnadm_sid"
	testTTL    = time.Hour
	csrfToken  = "test-csrf-token"
)

type countingHasher struct {
	mu       sync.Mutex
	verifies int
}

func (h *countingHasher) Hash(p string) (string, error) { return "plain:" + p, nil }

func (h *countingHasher) Verify(p, encoded string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.verifies++
	return encoded == "plain:"+p
}

func (h *countingHasher) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

// countingSessions observes session deletes on top of the real store.
type countingSessions struct {
	*database.DB
	mu      sync.Mutex
	deletes int
}

func (s *countingSessions) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	s.deletes++
	s.mu.Unlock()
	return s.DB.DeleteSession(ctx, id)
}

type stubDaemon struct {
	err       error
	issued    []vpncertd.IssuedMeta
	bundleZip []byte
	healthErr error
}

func (d *stubDaemon) GenKeyAndSign(_ context.Context, req vpncertd.IssueRequest) (*vpncertd.IssueReply, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &vpncertd.IssueReply{CertPEM: "C", KeyPEMEncrypted: "K", Serial: "77", NotAfter: "2031-01-01"}, nil
}

func (d *stubDaemon) Revoke(context.Context, string, string) error { return d.err }

func (d *stubDaemon) ListIssued(context.Context) ([]vpncertd.IssuedMeta, error) {
	return d.issued, d.err
}

func (d *stubDaemon) BuildBundle(context.Context, vpncertd.BundleSpec) ([]byte, error) {
	return d.bundleZip, d.err
}

func (d *stubDaemon) Health(context.Context) error { return d.healthErr }

type testEnv struct {
	t        *testing.T
	db       *database.DB
	sessions *countingSessions
	hasher   *countingHasher
	users    *auth.UserService
	daemon   *stubDaemon
	ccdDir   string
	handler  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithProxies(t, nil)
}

func newTestEnvWithProxies(t *testing.T, proxies []string) *testEnv {
	t.Helper()
	trusted, err := middleware.NewTrustedProxies(proxies)
	require.NoError(t, err)

	db, err := database.New(context.Background(), filepath.Join(t.TempDir(), "h.db"), 1)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.Out = io.Discard

	env := &testEnv{
		t:        t,
		db:       db,
		sessions: &countingSessions{DB: db},
		hasher:   &countingHasher{},
		daemon:   &stubDaemon{},
		ccdDir:   filepath.Join(t.TempDir(), "ccd"),
	}

	cn := regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)
	auditSvc := auth.NewAuditService(db, log)
	env.users = auth.NewUserService(db, env.hasher)
	sessions := auth.NewSessionManager(env.sessions, testCookie, testTTL)
	throttle := auth.NewThrottle(db, auth.DefaultThrottlePolicy)
	csrf := middleware.NewCSRF(log)
	clients := services.NewClientService(env.daemon, auditSvc, cn, services.BundleTarget{Host: "vpn.example.org", Port: 1194, Proto: "udp"})
	ccd := services.NewCCDService(env.ccdDir, cn, auditSvc)

	rt := &Router{
		Logger:  log,
		Proxies: trusted,
		CSRF:    csrf,
		AuthMW:  middleware.NewAuthMiddleware(sessions, auth.NewAuthenticator(sessions, env.users), log),
		Auth:    NewAuthHandler(sessions, env.users, throttle, auditSvc, csrf, log),
		Admin:   NewAdminHandler(auditSvc, log),
		Users:   NewUsersHandler(env.users, auditSvc, log),
		Clients: NewClientsHandler(clients, log),
		CCD:     NewCCDHandler(ccd, log),
		Health:  NewHealthHandler(db, env.daemon, log),
	}
	env.handler = rt.Handler()
	return env
}

func (e *testEnv) createUser(username, password string, roles ...string) *models.User {
	e.t.Helper()
	u, err := e.users.Create(context.Background(), username, password, roles...)
	require.NoError(e.t, err)
	return u
}

// do issues a request. Unsafe methods carry a matching CSRF pair.
func (e *testEnv) do(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.t.Helper()
	return serve(e, e.request(method, path, body, cookies...))
}

func (e *testEnv) request(method, path string, body any, cookies ...*http.Cookie) *http.Request {
	e.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		r = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(e.t, err)
		r = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("User-Agent", "handlers-test")
	if method != http.MethodGet && method != http.MethodHead {
		req.Header.Set(middleware.CSRFHeaderName, csrfToken)
		req.AddCookie(&http.Cookie{Name: middleware.CSRFCookieName, Value: csrfToken})
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	return req
}

func (e *testEnv) login(username, password string) *http.Cookie {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/auth/login", loginRequest{Username: username, Password: password})
	require.Equal(e.t, http.StatusNoContent, rec.Code, rec.Body.String())
	return sessionCookie(e.t, rec)
}

func (e *testEnv) auditRows() []models.AuditEntry {
	e.t.Helper()
	rows, err := e.db.ListAudit(context.Background(), 200, 0)
	require.NoError(e.t, err)
	return rows
}

func (e *testEnv) auditActions() []string {
	rows := e.auditRows()
	out := make([]string, len(rows))
	// Oldest first reads more naturally in assertions.
	for i, row := range rows {
		out[len(rows)-1-i] = row.Action
	}
	return out
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == testCookie {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", testCookie)
	return nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}
