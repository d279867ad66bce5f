// Package store provides the key-value storage the AI governor keeps its cache
// and quota lock in. Memory stores live for the process; bolt and SQL stores
// survive restarts.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store is a byte-oriented key-value store. Implementations are safe for
// concurrent use and never hand out their internal buffers.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverBolt     = "bolt"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	ErrClosed        = errors.New("store is closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
)

// Config selects and locates the persistent store.
type Config struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"` // bolt and sqlite file
	DSN    string `mapstructure:"dsn"`  // postgres connection string
}

// Open returns the store described by cfg.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverBolt, "":
		return OpenBolt(cfg.Path)
	case DriverSQLite:
		return OpenSQL(DriverSQLite, cfg.Path)
	case DriverPostgres:
		return OpenSQL(DriverPostgres, cfg.DSN)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
