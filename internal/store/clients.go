// ABOUTME: Client operations for the SQLite registry
// ABOUTME: Registration inserts client and owner account atomically with tenant provisioning

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const clientColumns = "id, name, email, tenant_id, created_at, is_active"

// CreateClient inserts client and, when owner is non-nil, its first account.
// provision runs inside the same transaction; a provisioning failure rolls
// back both inserts so no registry row refers to a missing tenant store.
func (s *SQLiteStore) CreateClient(ctx context.Context, client *Client, owner *Account, provision ProvisionFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
	`, client.ID, client.Name, client.Email, client.TenantID, formatTime(client.CreatedAt), boolToInt(client.IsActive))
	if err != nil {
		return mapClientInsertError(err)
	}

	if owner != nil {
		if owner.ClientID != client.ID {
			return fmt.Errorf("owner account belongs to client %q, not %q", owner.ClientID, client.ID)
		}
		if err := insertAccount(ctx, tx, owner); err != nil {
			return err
		}
	}

	if provision != nil {
		if err := provision(ctx, client); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing client registration: %w", err)
	}

	s.logger.Info("client registered", "client_id", client.ID, "tenant_id", client.TenantID)
	return nil
}

func mapClientInsertError(err error) error {
	switch {
	case isUniqueConstraintError(err, "clients.email"):
		return ErrClientAlreadyExists
	case isUniqueConstraintError(err, "clients.tenant_id"):
		return ErrTenantIDTaken
	case isUniqueConstraintError(err, "clients.id"):
		return ErrClientAlreadyExists
	}
	return fmt.Errorf("inserting client: %w", err)
}

// GetClient retrieves a client by ID
func (s *SQLiteStore) GetClient(ctx context.Context, id string) (*Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	return scanClient(row)
}

// GetClientByEmail retrieves a client by its contact email
func (s *SQLiteStore) GetClientByEmail(ctx context.Context, email string) (*Client, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE email = ?`, email)
	return scanClient(row)
}

// ListClients returns all clients ordered by creation time
func (s *SQLiteStore) ListClients(ctx context.Context) ([]*Client, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying clients: %w", err)
	}
	defer rows.Close()

	clients := []*Client{}
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clients: %w", err)
	}
	return clients, nil
}

// SetClientActive toggles whether a client may be used by its accounts
func (s *SQLiteStore) SetClientActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE clients SET is_active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("updating client: %w", err)
	}
	return requireAffected(result, ErrClientNotFound)
}

// DeleteClient removes the client row. Accounts go with it by cascade.
func (s *SQLiteStore) DeleteClient(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting client: %w", err)
	}
	return requireAffected(result, ErrClientNotFound)
}

func scanClient(row rowScanner) (*Client, error) {
	var (
		c         Client
		createdAt string
		active    int
	)
	err := row.Scan(&c.ID, &c.Name, &c.Email, &c.TenantID, &createdAt, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning client: %w", err)
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	c.IsActive = active != 0
	return &c, nil
}

func requireAffected(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
