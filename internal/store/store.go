// internal/store/store.go
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github-commit-tracker/internal/model"
)

// Driver names accepted by Open.
const (
	DriverJSON     = "json"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store persists the full channel mapping set.
//
// Load returns an empty set and no error when nothing has been stored yet.
// Save replaces the stored set as a whole; on failure the previously stored set stays readable.
type Store interface {
	Load(ctx context.Context) (model.MappingSet, error)
	Save(ctx context.Context, set model.MappingSet) error
	Close() error
}

// Options selects and configures a Store driver.
type Options struct {
	Driver string
	Path   string
	DBURL  string
}

// Open creates the Store named by opts.Driver.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Store, error) {
	switch opts.Driver {
	case DriverJSON, "":
		return NewFileStore(opts.Path, logger), nil
	case DriverSQLite:
		return OpenSQLite(ctx, opts.Path, logger)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.DBURL, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
