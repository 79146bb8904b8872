// ABOUTME: Account operations for the SQLite registry
// ABOUTME: Profile updates are built with squirrel over a fixed set of columns

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

const accountColumns = "id, username, email, password_hash, profile_picture, created_at, is_active, client_id"

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CreateAccount inserts an account for an existing client
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *Account) error {
	if err := insertAccount(ctx, s.db, account); err != nil {
		return err
	}
	s.logger.Debug("account created", "account_id", account.ID, "client_id", account.ClientID)
	return nil
}

func insertAccount(ctx context.Context, db execer, a *Account) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Username, a.Email, a.PasswordHash, nullString(a.ProfilePicture),
		formatTime(a.CreatedAt), boolToInt(a.IsActive), a.ClientID)
	if err != nil {
		switch {
		case isUniqueConstraintError(err, "accounts.email"), isUniqueConstraintError(err, "accounts.id"):
			return ErrAccountAlreadyExists
		case isForeignKeyError(err):
			return ErrClientNotFound
		}
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by ID
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// GetAccountByEmail retrieves an account by its login email
func (s *SQLiteStore) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = ?`, email)
	return scanAccount(row)
}

// ListAccountsByClient returns the accounts bound to a client
func (s *SQLiteStore) ListAccountsByClient(ctx context.Context, clientID string) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE client_id = ? ORDER BY created_at, id`, clientID)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	accounts := []*Account{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccount applies the non-nil fields of update. An empty update only
// checks that the account exists.
func (s *SQLiteStore) UpdateAccount(ctx context.Context, id string, update AccountUpdate) error {
	set := map[string]interface{}{}
	if update.Username != nil {
		set["username"] = *update.Username
	}
	if update.Email != nil {
		set["email"] = *update.Email
	}
	if len(set) == 0 {
		_, err := s.GetAccount(ctx, id)
		return err
	}

	query, args, err := sq.Update("accounts").SetMap(set).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building account update: %w", err)
	}

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueConstraintError(err, "accounts.email") {
			return ErrAccountAlreadyExists
		}
		return fmt.Errorf("updating account: %w", err)
	}
	return requireAffected(result, ErrAccountNotFound)
}

// UpdateAccountPassword replaces the stored password hash
func (s *SQLiteStore) UpdateAccountPassword(ctx context.Context, id, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE accounts SET password_hash = ? WHERE id = ?`, passwordHash, id)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	return requireAffected(result, ErrAccountNotFound)
}

// UpdateAccountProfilePicture sets or clears the profile picture reference
func (s *SQLiteStore) UpdateAccountProfilePicture(ctx context.Context, id, ref string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE accounts SET profile_picture = ? WHERE id = ?`, nullString(ref), id)
	if err != nil {
		return fmt.Errorf("updating profile picture: %w", err)
	}
	return requireAffected(result, ErrAccountNotFound)
}

// SetAccountActive toggles whether an account may authenticate
func (s *SQLiteStore) SetAccountActive(ctx context.Context, id string, active bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE accounts SET is_active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	return requireAffected(result, ErrAccountNotFound)
}

func scanAccount(row rowScanner) (*Account, error) {
	var (
		a         Account
		picture   sql.NullString
		createdAt string
		active    int
	)
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &picture, &createdAt, &active, &a.ClientID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account: %w", err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	a.ProfilePicture = picture.String
	a.IsActive = active != 0
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isForeignKeyError(err error) bool {
	return err != nil && containsFold(err.Error(), "FOREIGN KEY constraint failed")
}
