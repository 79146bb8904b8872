// ABOUTME: Generic statement execution against a tenant store with bounded busy retries
// ABOUTME: Statements are squirrel builders, so values always travel as bound parameters

package tenantdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// Row is one result row keyed by column name.
type Row map[string]interface{}

// Result is the outcome of Execute. Reads fill Rows; writes fill RowsAffected
// and LastInsertID.
type Result struct {
	Rows         []Row
	RowsAffected int64
	LastInsertID int64
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// Execute runs one statement against the tenant store addressed by h.
func (m *Manager) Execute(ctx context.Context, h *Handle, stmt sq.Sqlizer) (*Result, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building statement: %w", err)
	}

	start := time.Now()
	var res *Result
	err = m.withDB(ctx, h, func(db *sqlx.DB) error {
		return m.retry(ctx, func() error {
			var err error
			res, err = run(ctx, db, query, args)
			return err
		})
	})
	m.metrics.ObserveTenantOp(opName(query), start, err)
	if err != nil {
		return nil, err
	}

	m.logger.Debug("executed tenant statement", "tenant_id", h.tenantID, "op", opName(query))
	return res, nil
}

// Tx is a transaction on one tenant store.
type Tx struct {
	tx *sqlx.Tx
}

// Execute runs one statement inside the transaction.
func (t *Tx) Execute(ctx context.Context, stmt sq.Sqlizer) (*Result, error) {
	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building statement: %w", err)
	}
	return run(ctx, t.tx, query, args)
}

// WithTx runs fn in a single transaction on the tenant store. The
// transaction commits if fn returns nil and rolls back otherwise. When the
// store is busy the whole transaction is retried, so fn must not have side
// effects outside the transaction.
func (m *Manager) WithTx(ctx context.Context, h *Handle, fn func(tx *Tx) error) error {
	start := time.Now()
	err := m.withDB(ctx, h, func(db *sqlx.DB) error {
		return m.retry(ctx, func() error {
			tx, err := db.BeginTxx(ctx, nil)
			if err != nil {
				return err
			}
			if err := fn(&Tx{tx: tx}); err != nil {
				_ = tx.Rollback()
				return err
			}
			return tx.Commit()
		})
	})
	m.metrics.ObserveTenantOp("tx", start, err)
	return err
}

// run executes query on q, classifying it as a read or a write.
func run(ctx context.Context, q queryer, query string, args []interface{}) (*Result, error) {
	if !isRead(query) {
		r, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		res := &Result{}
		if res.RowsAffected, err = r.RowsAffected(); err != nil {
			return nil, fmt.Errorf("reading rows affected: %w", err)
		}
		if res.LastInsertID, err = r.LastInsertId(); err != nil {
			return nil, fmt.Errorf("reading last insert id: %w", err)
		}
		return res, nil
	}

	rows, err := q.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := &Result{Rows: []Row{}}
	for rows.Next() {
		row := make(map[string]interface{})
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		res.Rows = append(res.Rows, Row(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return res, nil
}

// isRead reports whether query produces rows.
func isRead(query string) bool {
	switch opName(query) {
	case "select", "with", "pragma", "explain", "values":
		return true
	}
	return false
}

// opName returns the lower-cased leading keyword of query.
func opName(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}

// retry runs fn, retrying with exponential backoff while the store reports
// busy or locked. Other errors are returned immediately.
func (m *Manager) retry(ctx context.Context, fn func() error) error {
	backoff := m.retryBackoff
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
		if attempt >= m.maxRetries {
			break
		}

		m.metrics.IncBusyRetry()
		m.logger.Debug("tenant store busy, retrying", "attempt", attempt+1, "backoff", backoff)

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}

	m.logger.Warn("tenant store busy, retries exhausted", "attempts", m.maxRetries+1, "error", err)
	return fmt.Errorf("%w after %d attempts: %v", ErrStoreBusy, m.maxRetries+1, err)
}

// isBusy checks if the error is a SQLite BUSY or LOCKED condition
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "SQLITE_LOCKED")
}
