// ABOUTME: File reference metadata kept in the tenant store
// ABOUTME: Only metadata lives here; file contents belong to external storage

package records

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/2389/tower-gateway/internal/session"
	"github.com/2389/tower-gateway/internal/tenantdb"
)

// FileRef describes a stored file.
type FileRef struct {
	ID         int64
	Filename   string
	Path       string
	Type       string
	Size       int64
	UploadedAt time.Time
}

var fileRefColumns = []string{"id", "filename", "path", "type", "size", "uploaded_at"}

// ListFiles returns the client's file refs, newest first.
func (s *Store) ListFiles(ctx context.Context, scope *session.Scope) ([]FileRef, error) {
	h, err := scope.Tenant(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.tenants.Execute(ctx, h, sq.Select(fileRefColumns...).
		From(tenantdb.TableFileRef).
		OrderBy("uploaded_at DESC", "id DESC"))
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}

	out := make([]FileRef, 0, len(res.Rows))
	for _, row := range res.Rows {
		f := FileRef{
			ID:       asInt64(row["id"]),
			Filename: asString(row["filename"]),
			Path:     asString(row["path"]),
			Type:     asString(row["type"]),
			Size:     asInt64(row["size"]),
		}
		if f.UploadedAt, err = parseTime(asString(row["uploaded_at"])); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// CreateFile records file metadata. ID and UploadedAt are assigned here.
func (s *Store) CreateFile(ctx context.Context, scope *session.Scope, f FileRef) (*FileRef, error) {
	if f.Filename == "" || f.Path == "" {
		return nil, ErrMissingFileInfo
	}
	h, err := scope.Tenant(ctx)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	res, err := s.tenants.Execute(ctx, h, sq.Insert(tenantdb.TableFileRef).
		Columns("filename", "path", "type", "size", "uploaded_at").
		Values(f.Filename, f.Path, f.Type, f.Size, now))
	if err != nil {
		return nil, fmt.Errorf("creating file ref: %w", err)
	}

	f.ID = res.LastInsertID
	if f.UploadedAt, err = parseTime(now); err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteFile removes a file ref.
func (s *Store) DeleteFile(ctx context.Context, scope *session.Scope, id int64) error {
	h, err := scope.Tenant(ctx)
	if err != nil {
		return err
	}

	res, err := s.tenants.Execute(ctx, h, sq.Delete(tenantdb.TableFileRef).Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("deleting file ref: %w", err)
	}
	if res.RowsAffected == 0 {
		return ErrFileRefNotFound
	}
	return nil
}
