package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/peternagy/tablemoins/internal/core"
	"github.com/peternagy/tablemoins/internal/debug"
	"github.com/peternagy/tablemoins/internal/types"
)

// ConnectionStore is CRUD over persisted connection profiles. Secrets are
// stored as given; callers encrypt them first.
type ConnectionStore struct {
	db  *DB
	now func() time.Time
}

// NewConnectionStore creates a store over db.
func NewConnectionStore(db *DB) *ConnectionStore {
	return &ConnectionStore{db: db, now: time.Now}
}

const selectConnection = `
	SELECT id, name, type, host, port, username, password, database_name, ssl_config,
	       group_name, color, is_active, created_at, updated_at, last_connected_at
	FROM connections`

// Save inserts or replaces a profile. CreatedAt is kept from the existing row;
// UpdatedAt is set to now. The stored profile is returned.
func (s *ConnectionStore) Save(ctx context.Context, p types.ConnectionProfile) (types.ConnectionProfile, error) {
	if p.ID == "" {
		return p, errors.New("profile id is required")
	}
	if p.Name == "" {
		return p, errors.New("profile name is required")
	}
	if !slices.Contains(types.StorableBackends, p.Type) {
		return p, &core.UnsupportedBackendError{Type: string(p.Type)}
	}

	ssl, err := json.Marshal(p.SSL)
	if err != nil {
		return p, fmt.Errorf("failed to encode ssl config: %w", err)
	}

	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO connections (id, name, type, host, port, username, password, database_name, ssl_config,
		                         group_name, color, is_active, created_at, updated_at, last_connected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			host = excluded.host,
			port = excluded.port,
			username = excluded.username,
			password = excluded.password,
			database_name = excluded.database_name,
			ssl_config = excluded.ssl_config,
			group_name = excluded.group_name,
			color = excluded.color,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		p.ID, p.Name, string(p.Type), p.Host, p.Port, p.Username, p.Password, p.Database, string(ssl),
		p.Group, p.Color, p.IsActive, formatTime(p.CreatedAt), formatTime(p.UpdatedAt), nullTime(p.LastConnectedAt),
	)
	if err != nil {
		return p, fmt.Errorf("failed to save profile %s: %w", p.ID, err)
	}

	debug.LogStorage("Profile saved", map[string]interface{}{"id": p.ID, "type": p.Type})
	return s.GetByID(ctx, p.ID, true)
}

// GetByID loads one profile. Soft-deleted profiles are returned only when
// includeInactive is set.
func (s *ConnectionStore) GetByID(ctx context.Context, id string, includeInactive bool) (types.ConnectionProfile, error) {
	query := selectConnection + " WHERE id = ?"
	if !includeInactive {
		query += " AND is_active = 1"
	}
	p, err := scanProfile(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, &core.ProfileNotFoundError{ID: id}
	}
	if err != nil {
		return p, fmt.Errorf("failed to load profile %s: %w", id, err)
	}
	return p, nil
}

// GetAll lists profiles ordered by group and name.
func (s *ConnectionStore) GetAll(ctx context.Context, activeOnly bool) ([]types.ConnectionProfile, error) {
	query := selectConnection
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY group_name, name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]types.ConnectionProfile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// Delete removes a profile. A soft delete only clears the active flag.
func (s *ConnectionStore) Delete(ctx context.Context, id string, soft bool) error {
	var (
		res sql.Result
		err error
	)
	if soft {
		res, err = s.db.ExecContext(ctx, "UPDATE connections SET is_active = 0, updated_at = ? WHERE id = ?", formatTime(s.now().UTC()), id)
	} else {
		res, err = s.db.ExecContext(ctx, "DELETE FROM connections WHERE id = ?", id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete profile %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.ProfileNotFoundError{ID: id}
	}

	debug.LogStorage("Profile deleted", map[string]interface{}{"id": id, "soft": soft})
	return nil
}

// UpdateLastConnected stamps the profile's last successful connect time.
func (s *ConnectionStore) UpdateLastConnected(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE connections SET last_connected_at = ? WHERE id = ?", formatTime(s.now().UTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update last connected for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &core.ProfileNotFoundError{ID: id}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(r rowScanner) (types.ConnectionProfile, error) {
	var (
		p                    types.ConnectionProfile
		backend, ssl         string
		createdAt, updatedAt string
		lastConnected        sql.NullString
	)
	err := r.Scan(&p.ID, &p.Name, &backend, &p.Host, &p.Port, &p.Username, &p.Password, &p.Database, &ssl,
		&p.Group, &p.Color, &p.IsActive, &createdAt, &updatedAt, &lastConnected)
	if err != nil {
		return p, err
	}
	p.Type = types.BackendType(backend)
	if ssl != "" {
		if err := json.Unmarshal([]byte(ssl), &p.SSL); err != nil {
			return p, fmt.Errorf("corrupt ssl config for %s: %w", p.ID, err)
		}
	}
	p.CreatedAt = parseTime(createdAt)
	p.UpdatedAt = parseTime(updatedAt)
	if lastConnected.Valid {
		p.LastConnectedAt = parseTime(lastConnected.String)
	}
	return p, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
