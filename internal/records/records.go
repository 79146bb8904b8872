// ABOUTME: Key/value records kept in each client's tenant store
// ABOUTME: Every operation reaches the store through a resolved session scope

package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/2389/tower-gateway/internal/fault"
	"github.com/2389/tower-gateway/internal/session"
	"github.com/2389/tower-gateway/internal/tenantdb"
)

// Errors returned by the records store.
var (
	ErrRecordNotFound  = fault.New(fault.NotFound, "record not found")
	ErrFileRefNotFound = fault.New(fault.NotFound, "file not found")
	ErrMissingKey      = fault.New(fault.Validation, "key is required")
	ErrNoSettings      = fault.New(fault.Validation, "settings are required")
	ErrMissingFileInfo = fault.New(fault.Validation, "filename and path are required")
)

// Executor runs statements against tenant stores. *tenantdb.Manager implements it.
type Executor interface {
	Execute(ctx context.Context, h *tenantdb.Handle, stmt sq.Sqlizer) (*tenantdb.Result, error)
	WithTx(ctx context.Context, h *tenantdb.Handle, fn func(tx *tenantdb.Tx) error) error
}

// Record is one key/value row. Keys are not unique.
type Record struct {
	ID        int64
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RecordPatch lists the fields to change. Nil fields are left unchanged.
type RecordPatch struct {
	Key   *string
	Value *string
}

// Store implements records, settings and file refs on top of tenant stores.
type Store struct {
	tenants Executor
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Store.
func New(tenants Executor, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		tenants: tenants,
		logger:  logger.With("component", "records"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(tenantdb.TimeLayout)
}

var recordColumns = []string{"id", "key", "value", "created_at", "updated_at"}

// ListRecords returns the client's records, newest first.
func (s *Store) ListRecords(ctx context.Context, scope *session.Scope) ([]Record, error) {
	h, err := scope.Tenant(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.tenants.Execute(ctx, h, sq.Select(recordColumns...).
		From(tenantdb.TableRecord).
		OrderBy("created_at DESC", "id DESC"))
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}

	out := make([]Record, 0, len(res.Rows))
	for _, row := range res.Rows {
		r, err := recordFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// GetRecord returns one record.
func (s *Store) GetRecord(ctx context.Context, scope *session.Scope, id int64) (*Record, error) {
	h, err := scope.Tenant(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.tenants.Execute(ctx, h, selectRecord(id))
	if err != nil {
		return nil, fmt.Errorf("getting record: %w", err)
	}
	return firstRecord(res)
}

// CreateRecord appends a record and returns it.
func (s *Store) CreateRecord(ctx context.Context, scope *session.Scope, key, value string) (*Record, error) {
	if key == "" {
		return nil, ErrMissingKey
	}
	h, err := scope.Tenant(ctx)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	res, err := s.tenants.Execute(ctx, h, sq.Insert(tenantdb.TableRecord).
		Columns("key", "value", "created_at", "updated_at").
		Values(key, value, now, now))
	if err != nil {
		return nil, fmt.Errorf("creating record: %w", err)
	}

	created, err := parseTime(now)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("record created", "client_id", scope.Client.ID, "record_id", res.LastInsertID)
	return &Record{
		ID:        res.LastInsertID,
		Key:       key,
		Value:     value,
		CreatedAt: created,
		UpdatedAt: created,
	}, nil
}

// UpdateRecord applies patch and refreshes updated_at, returning the new row.
func (s *Store) UpdateRecord(ctx context.Context, scope *session.Scope, id int64, patch RecordPatch) (*Record, error) {
	if patch.Key != nil && *patch.Key == "" {
		return nil, ErrMissingKey
	}
	h, err := scope.Tenant(ctx)
	if err != nil {
		return nil, err
	}

	set := map[string]interface{}{"updated_at": s.timestamp()}
	if patch.Key != nil {
		set["key"] = *patch.Key
	}
	if patch.Value != nil {
		set["value"] = *patch.Value
	}

	var updated *Record
	err = s.tenants.WithTx(ctx, h, func(tx *tenantdb.Tx) error {
		res, err := tx.Execute(ctx, sq.Update(tenantdb.TableRecord).SetMap(set).Where(sq.Eq{"id": id}))
		if err != nil {
			return err
		}
		if res.RowsAffected == 0 {
			return ErrRecordNotFound
		}
		res, err = tx.Execute(ctx, selectRecord(id))
		if err != nil {
			return err
		}
		updated, err = firstRecord(res)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("updating record: %w", err)
	}
	return updated, nil
}

// DeleteRecord removes a record.
func (s *Store) DeleteRecord(ctx context.Context, scope *session.Scope, id int64) error {
	h, err := scope.Tenant(ctx)
	if err != nil {
		return err
	}

	res, err := s.tenants.Execute(ctx, h, sq.Delete(tenantdb.TableRecord).Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("deleting record: %w", err)
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	s.logger.Debug("record deleted", "client_id", scope.Client.ID, "record_id", id)
	return nil
}

func selectRecord(id int64) sq.SelectBuilder {
	return sq.Select(recordColumns...).From(tenantdb.TableRecord).Where(sq.Eq{"id": id})
}

func firstRecord(res *tenantdb.Result) (*Record, error) {
	if len(res.Rows) == 0 {
		return nil, ErrRecordNotFound
	}
	r, err := recordFromRow(res.Rows[0])
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func recordFromRow(row tenantdb.Row) (Record, error) {
	r := Record{
		ID:    asInt64(row["id"]),
		Key:   asString(row["key"]),
		Value: asString(row["value"]),
	}
	var err error
	if r.CreatedAt, err = parseTime(asString(row["created_at"])); err != nil {
		return Record{}, err
	}
	if r.UpdatedAt, err = parseTime(asString(row["updated_at"])); err != nil {
		return Record{}, err
	}
	return r, nil
}
