package storage

import (
	"context"
	"errors"
	"strings"

	logx "github.com/IbragimovN/coachlast/pkg/logx"
)

// Default locations used when Config.Path is empty.
const (
	DefaultFilePath   = "./users.json"
	DefaultSQLitePath = "./users.db"
)

// DefaultPath returns the default location for driver. Unknown drivers get
// the file default; Open rejects them anyway.
func DefaultPath(driver string) string {
	if normalizeDriver(driver) == "sqlite" {
		return DefaultSQLitePath
	}
	return DefaultFilePath
}

func normalizeDriver(driver string) string {
	switch d := strings.ToLower(strings.TrimSpace(driver)); d {
	case "", "file", "json":
		return "file"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return d
	}
}

// Store persists the whole user mapping.
type Store interface {
	// Load returns an empty State when nothing was persisted yet and a
	// *CorruptStateError when the snapshot exists but cannot be decoded.
	Load(ctx context.Context) (State, error)
	// Save atomically replaces the previous snapshot with st.
	Save(ctx context.Context, st State) error
	Close() error
}

// Open initializes the configured store. An empty driver means "file".
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := normalizeDriver(cfg.Driver)
	if strings.TrimSpace(cfg.Path) == "" {
		cfg.Path = DefaultPath(driver)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("driver", driver), logx.String("path", cfg.Path))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
