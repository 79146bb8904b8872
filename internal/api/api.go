// ABOUTME: JSON HTTP API for registration, login, profile and per-client data
// ABOUTME: Tenant-scoped routes resolve the caller's client from the bearer token only

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/tower-gateway/internal/auth"
	"github.com/2389/tower-gateway/internal/fault"
	"github.com/2389/tower-gateway/internal/identity"
	"github.com/2389/tower-gateway/internal/metrics"
	"github.com/2389/tower-gateway/internal/records"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Tokens issues and verifies bearer tokens. *auth.JWTVerifier implements it.
type Tokens interface {
	auth.TokenVerifier
	auth.TokenIssuer
}

// Deps are the collaborators of the API.
type Deps struct {
	Identity *identity.Service
	Records  *records.Store
	Binder   auth.Resolver
	Tokens   Tokens
	TokenTTL time.Duration
	Metrics  *metrics.Metrics
	// Ready reports whether the backing stores are usable. Nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *slog.Logger
}

// API serves the HTTP surface.
type API struct {
	identity *identity.Service
	records  *records.Store
	binder   auth.Resolver
	tokens   Tokens
	tokenTTL time.Duration
	metrics  *metrics.Metrics
	ready    func(ctx context.Context) error
	logger   *slog.Logger
}

// New creates an API.
func New(d Deps) *API {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := d.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &API{
		identity: d.Identity,
		records:  d.Records,
		binder:   d.Binder,
		tokens:   d.Tokens,
		tokenTTL: ttl,
		metrics:  d.Metrics,
		ready:    d.Ready,
		logger:   logger.With("component", "api"),
	}
}

// Register adds every route to mux.
func (a *API) Register(mux *http.ServeMux) {
	public := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, a.metrics.Middleware(pattern, h))
	}
	requireAuth := auth.HTTPAuthMiddleware(a.binder, a.tokens, a.logger)
	private := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, a.metrics.Middleware(pattern, requireAuth(h)))
	}

	public("GET /health", a.handleHealth)
	public("GET /health/ready", a.handleReady)

	public("POST /api/auth/register", a.handleRegister)
	public("POST /api/auth/login", a.handleLogin)
	private("GET /api/auth/me", a.handleMe)
	private("POST /api/auth/logout", a.handleLogout)

	private("GET /api/profile", a.handleMe)
	private("PUT /api/profile", a.handleUpdateProfile)
	private("POST /api/profile/change-password", a.handleChangePassword)
	private("PUT /api/profile/picture", a.handleSetPicture)

	private("GET /api/client/data", a.handleListRecords)
	private("POST /api/client/data", a.handleCreateRecord)
	private("GET /api/client/data/{id}", a.handleGetRecord)
	private("PUT /api/client/data/{id}", a.handleUpdateRecord)
	private("DELETE /api/client/data/{id}", a.handleDeleteRecord)

	private("GET /api/client/settings", a.handleGetSettings)
	private("POST /api/client/settings", a.handleUpsertSettings)

	private("GET /api/client/files", a.handleListFiles)
	private("POST /api/client/files", a.handleCreateFile)
	private("DELETE /api/client/files/{id}", a.handleDeleteFile)
}

// Handler returns a mux with every route registered.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.Register(mux)
	return mux
}

var errInvalidBody = fault.New(fault.Validation, "invalid JSON body")

// decodeJSON reads a JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidBody
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sendJSONError writes a JSON error response.
func sendJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps err to its status and a caller-safe message. Unclassified
// errors are logged and reported as internal.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	kind := fault.KindOf(err)
	status := fault.HTTPStatus(kind)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	sendJSONError(w, status, fault.Message(err))
}

func message(msg string) map[string]string {
	return map[string]string{"message": msg}
}
