// ABOUTME: Manager owns the embedded SQLite store of every tenant under one root directory
// ABOUTME: Provision, open, destroy and list tenant stores; one <tenant_id>.db file per client

package tenantdb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/singleflight"

	// Registers the cgo "sqlite3" driver, selectable with Options.Driver.
	_ "github.com/mattn/go-sqlite3"
	// Registers the pure Go "sqlite" driver, the default.
	_ "modernc.org/sqlite"

	"github.com/2389/tower-gateway/internal/fault"
	"github.com/2389/tower-gateway/internal/metrics"
)

// Errors returned by the manager.
var (
	ErrTenantNotProvisioned = fault.New(fault.NotFound, "tenant store not provisioned")
	ErrStoreBusy            = fault.New(fault.StoreUnavailable, "tenant store busy")
	ErrInvalidTenantID      = fault.New(fault.Validation, "invalid tenant id")
	ErrClosed               = fault.New(fault.StoreUnavailable, "tenant manager closed")
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// TimeLayout is the fixed-width UTC layout used for every timestamp column,
// so lexical order matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000Z07:00"

const fileExt = ".db"

var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,128}$`)

// Options configures a Manager.
type Options struct {
	Root         string
	Driver       string
	BusyTimeout  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	IdleTimeout  time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// Manager provisions and routes statements to per-tenant stores.
// It is safe for concurrent use.
type Manager struct {
	root         string
	driver       string
	busyTimeout  time.Duration
	maxRetries   int
	retryBackoff time.Duration

	logger  *slog.Logger
	metrics *metrics.Metrics

	locks      *tenantLocks
	provisions singleflight.Group
	pending    *pendingProvisions
	pool       *pool // nil when pooling is disabled
}

// Handle addresses one provisioned tenant store. It holds no connection;
// every Execute acquires and releases one.
type Handle struct {
	tenantID string
}

// TenantID returns the tenant the handle addresses.
func (h *Handle) TenantID() string {
	return h.tenantID
}

// New creates a Manager rooted at opts.Root, creating the directory if needed.
func New(opts Options) (*Manager, error) {
	if opts.Root == "" {
		return nil, errors.New("tenant root is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving tenant root: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating tenant root: %w", err)
	}

	driver := opts.Driver
	if driver == "" {
		driver = DriverModernc
	}
	if driver != DriverModernc && driver != DriverMattn {
		return nil, fmt.Errorf("unsupported tenant driver %q", driver)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		root:         root,
		driver:       driver,
		busyTimeout:  opts.BusyTimeout,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		logger:       logger.With("component", "tenantdb"),
		metrics:      opts.Metrics,
		locks:        newTenantLocks(),
		pending:      newPendingProvisions(),
	}
	if m.retryBackoff <= 0 {
		m.retryBackoff = 20 * time.Millisecond
	}
	if opts.PoolSize > 0 {
		m.pool = newPool(opts.PoolSize, opts.IdleTimeout, opts.Metrics.SetPoolOpen)
	}

	m.logger.Info("tenant manager initialized", "root", root, "driver", driver, "pool_size", opts.PoolSize)
	return m, nil
}

// NewTenantID derives a fresh tenant identifier from a random UUID.
func NewTenantID(id string) string {
	return "client_" + strings.ReplaceAll(id, "-", "_")
}

// ValidateTenantID reports whether id is usable as a tenant store name.
func ValidateTenantID(id string) error {
	if !tenantIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidTenantID, id)
	}
	return nil
}

// Root returns the absolute directory holding tenant stores.
func (m *Manager) Root() string {
	return m.root
}

// path returns the store file for a validated tenant id.
func (m *Manager) path(tenantID string) string {
	return filepath.Join(m.root, tenantID+fileExt)
}

// Exists reports whether the store file for tenantID is present.
func (m *Manager) Exists(tenantID string) bool {
	if ValidateTenantID(tenantID) != nil {
		return false
	}
	_, err := os.Stat(m.path(tenantID))
	return err == nil
}

// Provision creates the store and its tables if absent and returns a handle.
// Calling it again for an existing tenant returns the existing store.
// Concurrent calls for the same tenant share one provisioning attempt. The
// shared attempt is detached from every caller's context: a caller that gives
// up gets its own ctx error while the others still see the attempt finish.
func (m *Manager) Provision(ctx context.Context, tenantID string) (*Handle, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	start := time.Now()
	m.pending.add(tenantID)
	ch := m.provisions.DoChan(tenantID, func() (interface{}, error) {
		return nil, m.provision(context.WithoutCancel(ctx), tenantID)
	})
	result := make(chan error, 1)
	go func() {
		res := <-ch
		m.pending.done(tenantID)
		result <- res.Err
	}()

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	}
	m.metrics.ObserveTenantOp("provision", start, err)
	if err != nil {
		m.metrics.IncProvision("failed")
		return nil, err
	}
	return &Handle{tenantID: tenantID}, nil
}

func (m *Manager) provision(ctx context.Context, tenantID string) error {
	unlock := m.locks.lock(tenantID)
	defer unlock()

	path := m.path(tenantID)
	_, statErr := os.Stat(path)
	existed := statErr == nil

	db, err := m.openDB(path, true)
	if err != nil {
		return fmt.Errorf("opening tenant store: %w", err)
	}
	defer db.Close()

	err = m.retry(ctx, func() error {
		_, err := db.ExecContext(ctx, tenantSchema)
		return err
	})
	if err != nil {
		if !existed {
			_ = db.Close()
			m.removeFiles(path)
		}
		return fmt.Errorf("creating tenant schema: %w", err)
	}

	if existed {
		m.metrics.IncProvision("existing")
		m.logger.Debug("tenant store already provisioned", "tenant_id", tenantID)
	} else {
		m.metrics.IncProvision("created")
		m.logger.Info("provisioned tenant store", "tenant_id", tenantID, "path", path)
	}
	return nil
}

// Open returns a handle for an existing store. It never creates one.
func (m *Manager) Open(ctx context.Context, tenantID string) (*Handle, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return nil, err
	}

	start := time.Now()
	h := &Handle{tenantID: tenantID}
	err := m.withDB(ctx, h, func(db *sqlx.DB) error {
		return db.PingContext(ctx)
	})
	m.metrics.ObserveTenantOp("open", start, err)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Destroy removes the store for tenantID. It reports whether a store was
// actually removed; destroying an absent store is not an error.
func (m *Manager) Destroy(ctx context.Context, tenantID string) (bool, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return false, err
	}

	// An in-flight Provision would recreate the store after removal.
	m.pending.wait(tenantID)

	start := time.Now()
	unlock := m.locks.lock(tenantID)
	defer unlock()

	if m.pool != nil {
		if err := m.pool.evict(tenantID); err != nil {
			m.logger.Warn("closing pooled tenant store", "tenant_id", tenantID, "error", err)
		}
	}

	path := m.path(tenantID)
	err := os.Remove(path)
	removed := err == nil
	if err != nil && !os.IsNotExist(err) {
		m.metrics.ObserveTenantOp("destroy", start, err)
		return false, fmt.Errorf("removing tenant store: %w", err)
	}
	m.removeFiles(path)
	m.metrics.ObserveTenantOp("destroy", start, nil)

	if removed {
		m.logger.Info("destroyed tenant store", "tenant_id", tenantID)
	}
	return removed, nil
}

// List returns the tenant ids that currently have a store on disk.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return nil, fmt.Errorf("reading tenant root: %w", err)
	}

	ids := []string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		if ValidateTenantID(id) == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Close releases every pooled store.
func (m *Manager) Close() error {
	if m.pool == nil {
		return nil
	}
	m.logger.Info("closing tenant manager")
	return m.pool.close()
}

// removeFiles deletes the WAL side files left next to a store.
func (m *Manager) removeFiles(path string) {
	for _, suffix := range []string{"", "-wal", "-shm", "-journal"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			m.logger.Warn("removing tenant store file", "path", path+suffix, "error", err)
		}
	}
}

// dsn builds the driver-specific connection string. create=false opens the
// file read-write without creating it.
func (m *Manager) dsn(path string, create bool) string {
	mode := "rw"
	if create {
		mode = "rwc"
	}
	busy := m.busyTimeout.Milliseconds()

	q := url.Values{}
	q.Set("mode", mode)
	q.Set("_txlock", "immediate")
	switch m.driver {
	case DriverMattn:
		q.Set("_busy_timeout", fmt.Sprint(busy))
		q.Set("_journal_mode", "WAL")
		q.Set("_foreign_keys", "1")
	default:
		q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy))
		q.Add("_pragma", "journal_mode(WAL)")
		q.Add("_pragma", "foreign_keys(1)")
	}

	u := url.URL{Scheme: "file", Path: path, RawQuery: q.Encode()}
	return u.String()
}

// openDB opens a database handle for path.
func (m *Manager) openDB(path string, create bool) (*sqlx.DB, error) {
	db, err := sqlx.Open(m.driver, m.dsn(path, create))
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; a single connection per store serializes
	// writers in-process and leaves contention to other processes.
	db.SetMaxOpenConns(1)
	return db, nil
}

// withDB runs fn against the tenant's database while holding the tenant's read
// lock, so destroy cannot remove the file underneath a running statement.
func (m *Manager) withDB(ctx context.Context, h *Handle, fn func(db *sqlx.DB) error) error {
	if h == nil {
		return fmt.Errorf("%w: nil handle", ErrInvalidTenantID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := m.locks.rlock(h.tenantID)
	defer unlock()

	path := m.path(h.tenantID)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrTenantNotProvisioned, h.tenantID)
		}
		return fmt.Errorf("checking tenant store: %w", err)
	}

	if m.pool == nil {
		db, err := m.openDB(path, false)
		if err != nil {
			return fmt.Errorf("opening tenant store: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				m.logger.Warn("closing tenant store", "tenant_id", h.tenantID, "error", err)
			}
		}()
		return fn(db)
	}

	entry, err := m.pool.acquire(h.tenantID, func() (*sqlx.DB, error) {
		return m.openDB(path, false)
	})
	if err != nil {
		return fmt.Errorf("opening tenant store: %w", err)
	}
	defer m.pool.release(entry)
	return fn(entry.db)
}
