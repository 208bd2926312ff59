// Package store persists tenant configuration, users' Canvas tokens and the
// provisioning error log.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediasite-provisioning/internal/mediasite"
	"mediasite-provisioning/internal/provisioning"
)

var ErrNotFound = errors.New("store: not found")

// Tenant is the configuration of one Canvas account (school).
type Tenant struct {
	AccountID    int64
	Name         string
	RootFolder   string
	ConsumerKey  string
	SharedSecret string
	ShowDate     bool
	ShowTime     bool
	ItemsPerPage int
}

// Provisioning converts t into the workflow's tenant settings.
func (t Tenant) Provisioning() provisioning.Tenant {
	return provisioning.Tenant{
		Name:       t.Name,
		RootFolder: t.RootFolder,
		Credentials: provisioning.Credentials{
			ConsumerKey:  t.ConsumerKey,
			SharedSecret: t.SharedSecret,
		},
		Catalog: mediasite.CatalogSettings{
			ShowDate:     t.ShowDate,
			ShowTime:     t.ShowTime,
			ItemsPerPage: t.ItemsPerPage,
		},
	}
}

type LogEntry struct {
	ID       int64
	Username string
	Created  time.Time
	Message  string
}

// Store is implemented by the SQLite and PostgreSQL backends.
type Store interface {
	Tenant(ctx context.Context, accountID int64) (*Tenant, error)
	Tenants(ctx context.Context) ([]Tenant, error)
	UpsertTenant(ctx context.Context, t Tenant) error
	APIToken(ctx context.Context, username string) (string, error)
	SaveAPIToken(ctx context.Context, username, token string) error
	LogError(ctx context.Context, username, message string) error
	Logs(ctx context.Context, limit int) ([]LogEntry, error)
	Close() error
}

// Open picks the backend by driver name: "sqlite" or "postgres".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite", "":
		return OpenSQLite(dsn)
	case "postgres", "pgx":
		return OpenPostgres(ctx, dsn)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", driver)
	}
}
