// ABOUTME: Per-client settings stored in the tenant store, unique by setting key
// ABOUTME: Bulk upserts run in one transaction so a partial batch is never visible

package records

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/2389/tower-gateway/internal/session"
	"github.com/2389/tower-gateway/internal/tenantdb"
)

// Setting is one stored setting row.
type Setting struct {
	ID        int64
	Key       string
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Settings is the full settings view of a client: a key to value map plus
// the rows it was built from, ordered by key.
type Settings struct {
	Values map[string]string
	Rows   []Setting
}

// GetSettings returns every setting of the client.
func (s *Store) GetSettings(ctx context.Context, scope *session.Scope) (*Settings, error) {
	h, err := scope.Tenant(ctx)
	if err != nil {
		return nil, err
	}

	res, err := s.tenants.Execute(ctx, h, sq.Select("id", "setting_key", "setting_value", "created_at", "updated_at").
		From(tenantdb.TableSetting).
		OrderBy("setting_key"))
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	out := &Settings{
		Values: make(map[string]string, len(res.Rows)),
		Rows:   make([]Setting, 0, len(res.Rows)),
	}
	for _, row := range res.Rows {
		st := Setting{
			ID:    asInt64(row["id"]),
			Key:   asString(row["setting_key"]),
			Value: asString(row["setting_value"]),
		}
		if st.CreatedAt, err = parseTime(asString(row["created_at"])); err != nil {
			return nil, err
		}
		if st.UpdatedAt, err = parseTime(asString(row["updated_at"])); err != nil {
			return nil, err
		}
		out.Values[st.Key] = st.Value
		out.Rows = append(out.Rows, st)
	}
	return out, nil
}

// UpsertSettings stores every key of values, overwriting existing keys.
// Applying the same map twice leaves the same keys and values.
func (s *Store) UpsertSettings(ctx context.Context, scope *session.Scope, values map[string]interface{}) error {
	if len(values) == 0 {
		return ErrNoSettings
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "" {
			return ErrMissingKey
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h, err := scope.Tenant(ctx)
	if err != nil {
		return err
	}

	now := s.timestamp()
	err = s.tenants.WithTx(ctx, h, func(tx *tenantdb.Tx) error {
		for _, k := range keys {
			stmt := sq.Insert(tenantdb.TableSetting).
				Columns("setting_key", "setting_value", "created_at", "updated_at").
				Values(k, SettingValue(values[k]), now, now).
				Suffix("ON CONFLICT(setting_key) DO UPDATE SET setting_value = excluded.setting_value, updated_at = excluded.updated_at")
			if _, err := tx.Execute(ctx, stmt); err != nil {
				return fmt.Errorf("upserting setting %q: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Debug("settings upserted", "client_id", scope.Client.ID, "count", len(keys))
	return nil
}

// SettingValue renders a decoded JSON value the way it is stored. Strings are
// kept as-is, numbers use their shortest form, null becomes empty, and
// objects and arrays are stored as JSON.
func SettingValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
