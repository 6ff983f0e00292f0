package snapshot

import (
	"path/filepath"
	"time"

	"codeberg.org/mutker/nvidiautil/internal/errors"
)

const (
	// File system permissions and paths
	defaultDirPerm       = 0o755
	defaultDBPath        = "/var/lib/nvidiautil/snapshot.db"
	defaultBatchSize     = 64
	defaultFlushInterval = 5 * time.Second
)

type Config struct {
	DBPath string
	// BackupDir receives a copy of the database before a schema rebuild.
	// Defaults to a "backups" directory next to DBPath.
	BackupDir string
	// BatchSize is the number of pending rows that forces a flush.
	BatchSize int
	// FlushInterval bounds how long a value may stay unflushed. Zero
	// disables the background flusher.
	FlushInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		DBPath:        defaultDBPath,
		BatchSize:     defaultBatchSize,
		FlushInterval: defaultFlushInterval,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.FlushInterval < 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "batch size and flush interval must not be negative")
	}
	return nil
}

func (c Config) backupDir() string {
	if c.BackupDir != "" {
		return c.BackupDir
	}
	return filepath.Join(filepath.Dir(c.DBPath), "backups")
}
