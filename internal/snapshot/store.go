package snapshot

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/nvidiautil/internal/collector"
	"codeberg.org/mutker/nvidiautil/internal/errors"
	"codeberg.org/mutker/nvidiautil/internal/logger"
	"codeberg.org/mutker/nvidiautil/internal/metric"
	_ "github.com/mattn/go-sqlite3"
)

// Store keeps the latest value per (metric, device) in SQLite. Values are
// buffered and written in batches; a newer value for the same pair replaces
// the buffered one.
type Store struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config
	now    func() time.Time

	mu       sync.Mutex
	pending  map[entryKey]Entry
	closed   bool
	ticker   *time.Ticker
	shutdown chan struct{}
	done     chan struct{}
}

func Open(cfg Config, log logger.Logger) (*Store, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, phaseError{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, phaseError{
			Phase: "open_database",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	if err := ValidateAndUpdateSchema(db, cfg.backupDir(), log); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("flush_interval", cfg.FlushInterval).
		Msg("Snapshot store initialized")

	s := &Store{
		db:       db,
		logger:   log,
		cfg:      cfg,
		now:      time.Now,
		pending:  make(map[entryKey]Entry),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	if cfg.FlushInterval > 0 {
		s.ticker = time.NewTicker(cfg.FlushInterval)
		go s.flusher()
	} else {
		close(s.done)
	}

	return s, nil
}

// Observer returns an observer that records values of the given metric.
func (s *Store) Observer(key string) collector.Observer {
	return collector.ObserverFunc(func(device int, value metric.Value) {
		if err := s.Record(key, device, value); err != nil {
			s.logger.Warn().Err(err).Str("metric", key).Int("device", device).Msg("Failed to record snapshot value")
		}
	})
}

// Record buffers a value, flushing when the batch is full.
func (s *Store) Record(key string, device int, value metric.Value) error {
	errFactory := errors.New()

	if key == "" {
		return errFactory.New(ErrInvalidMetric)
	}
	if device < 0 {
		return errFactory.WithData(metric.ErrInvalidDeviceNum, device)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errFactory.New(ErrStoreClosed)
	}

	s.pending[entryKey{metric: key, device: device}] = Entry{
		Metric:    key,
		Device:    device,
		Kind:      value.Kind,
		Number:    value.Number,
		Unit:      value.Unit,
		Text:      value.Text,
		Display:   value.String(),
		UpdatedAt: s.now().UTC().Truncate(time.Second),
	}

	if s.cfg.BatchSize > 0 && len(s.pending) >= s.cfg.BatchSize {
		return s.flush()
	}

	return nil
}

// Flush writes all buffered values.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flush()
}

// Latest returns the stored values ordered by metric and device. Buffered
// values are flushed first.
func (s *Store) Latest(ctx context.Context) ([]Entry, error) {
	errFactory := errors.New()

	if err := s.Flush(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, selectLatestSQL)
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageQuery, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			kind    string
			unit    string
			number  sql.NullFloat64
			text    sql.NullString
			updated int64
		)
		if err := rows.Scan(&e.Metric, &e.Device, &kind, &number, &unit, &text, &e.Display, &updated); err != nil {
			return nil, errFactory.Wrap(ErrStorageQuery, err)
		}

		e.Kind = metric.KindNumber
		if kind == metric.KindText.String() {
			e.Kind = metric.KindText
		}
		e.Number = number.Float64
		e.Unit = metric.Unit(unit)
		e.Text = text.String
		e.UpdatedAt = time.Unix(updated, 0).UTC()

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrStorageQuery, err)
	}

	return entries, nil
}

// Close flushes buffered values and closes the database.
func (s *Store) Close() error {
	errFactory := errors.New()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	if s.ticker != nil {
		s.ticker.Stop()
	}
	<-s.done

	s.mu.Lock()
	flushErr := s.flush()
	s.mu.Unlock()

	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Debug().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := s.db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, phaseError{
			Phase: "close_database",
			Path:  s.cfg.DBPath,
			Error: err.Error(),
		})
	}

	s.logger.Info().Msg("Snapshot store closed")

	return flushErr
}

func (s *Store) flusher() {
	defer close(s.done)

	for {
		select {
		case <-s.ticker.C:
			s.mu.Lock()
			if err := s.flush(); err != nil {
				s.logger.Warn().Err(err).Msg("Periodic snapshot flush failed")
			}
			s.mu.Unlock()
		case <-s.shutdown:
			return
		}
	}
}

// flush must be called with s.mu held.
func (s *Store) flush() error {
	if len(s.pending) == 0 {
		return nil
	}

	errFactory := errors.New()

	tx, err := s.db.Begin()
	if err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	stmt, err := tx.Prepare(upsertLatestSQL)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
		}
		return errFactory.Wrap(ErrTransactionFailed, err)
	}
	defer stmt.Close()

	for _, e := range s.pending {
		var (
			number any
			text   any
		)
		if e.Kind == metric.KindText {
			text = e.Text
		} else {
			number = e.Number
		}

		if _, err := stmt.Exec(e.Metric, e.Device, e.Kind.String(), number, string(e.Unit), text, e.Display, e.UpdatedAt.Unix()); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error().Err(rbErr).Msg("Failed to roll back transaction")
			}
			return errFactory.Wrap(ErrTransactionFailed, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errFactory.Wrap(ErrTransactionFailed, err)
	}

	s.logger.Debug().Int("records", len(s.pending)).Msg("Flushed snapshot values")
	clear(s.pending)

	return nil
}
