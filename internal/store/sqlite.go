package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	conn *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	conn.SetMaxOpenConns(1)

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schools (
		canvas_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		mediasite_root_folder TEXT NOT NULL,
		consumer_key TEXT NOT NULL DEFAULT '',
		shared_secret TEXT NOT NULL DEFAULT '',
		catalog_show_date INTEGER NOT NULL DEFAULT 1,
		catalog_show_time INTEGER NOT NULL DEFAULT 1,
		catalog_items_per_page INTEGER NOT NULL DEFAULT 100
	);
	CREATE TABLE IF NOT EXISTS api_users (
		username TEXT PRIMARY KEY,
		canvas_api_key TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL,
		created DATETIME NOT NULL,
		error TEXT NOT NULL
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

const tenantColumns = `canvas_id, name, mediasite_root_folder, consumer_key, shared_secret,
	catalog_show_date, catalog_show_time, catalog_items_per_page`

func (s *SQLiteStore) Tenant(ctx context.Context, accountID int64) (*Tenant, error) {
	row := s.conn.QueryRowContext(ctx, "SELECT "+tenantColumns+" FROM schools WHERE canvas_id = ?", accountID)
	var t Tenant
	err := row.Scan(&t.AccountID, &t.Name, &t.RootFolder, &t.ConsumerKey, &t.SharedSecret, &t.ShowDate, &t.ShowTime, &t.ItemsPerPage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tenant %d", ErrNotFound, accountID)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *SQLiteStore) Tenants(ctx context.Context) ([]Tenant, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT "+tenantColumns+" FROM schools ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tenant
	for rows.Next() {
		var t Tenant
		if err := rows.Scan(&t.AccountID, &t.Name, &t.RootFolder, &t.ConsumerKey, &t.SharedSecret, &t.ShowDate, &t.ShowTime, &t.ItemsPerPage); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertTenant(ctx context.Context, t Tenant) error {
	_, err := s.conn.ExecContext(ctx, `
	INSERT INTO schools (`+tenantColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(canvas_id) DO UPDATE SET
		name = excluded.name,
		mediasite_root_folder = excluded.mediasite_root_folder,
		consumer_key = excluded.consumer_key,
		shared_secret = excluded.shared_secret,
		catalog_show_date = excluded.catalog_show_date,
		catalog_show_time = excluded.catalog_show_time,
		catalog_items_per_page = excluded.catalog_items_per_page`,
		t.AccountID, t.Name, t.RootFolder, t.ConsumerKey, t.SharedSecret, t.ShowDate, t.ShowTime, t.ItemsPerPage)
	return err
}

func (s *SQLiteStore) APIToken(ctx context.Context, username string) (string, error) {
	var token string
	err := s.conn.QueryRowContext(ctx, "SELECT canvas_api_key FROM api_users WHERE username = ?", username).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: token for %s", ErrNotFound, username)
	}
	return token, err
}

func (s *SQLiteStore) SaveAPIToken(ctx context.Context, username, token string) error {
	_, err := s.conn.ExecContext(ctx, `
	INSERT INTO api_users (username, canvas_api_key, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(username) DO UPDATE SET canvas_api_key = excluded.canvas_api_key, updated_at = excluded.updated_at`,
		username, token, time.Now().UTC())
	return err
}

func (s *SQLiteStore) LogError(ctx context.Context, username, message string) error {
	_, err := s.conn.ExecContext(ctx, "INSERT INTO logs (username, created, error) VALUES (?, ?, ?)",
		username, time.Now().UTC(), message)
	return err
}

// Logs returns the newest entries first.
func (s *SQLiteStore) Logs(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.conn.QueryContext(ctx, "SELECT id, username, created, error FROM logs ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Created, &e.Message); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
