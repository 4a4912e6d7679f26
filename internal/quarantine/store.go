// Package quarantine keeps spans that could not be converted in a BoltDB file so
// they can be inspected and replayed later.
package quarantine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/robfig/cron/v3"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

var (
	json = jsoniter.ConfigCompatibleWithStandardLibrary

	bucketSpans = []byte("spans")

	// ErrNotFound is returned by Get when no record has the key.
	ErrNotFound = errors.New("quarantine record not found")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("quarantine store is closed")
)

// Record is one quarantined span.
type Record struct {
	// Key is derived from the payload, it is not stored in the value
	Key uint64 `json:"-"`

	// Source names the component that rejected the span
	Source string `json:"source"`

	// Reason is the conversion error
	Reason string `json:"reason"`

	// Payload is the span as it was received
	Payload []byte `json:"payload"`

	QuarantinedAt time.Time `json:"quarantinedAt"`
}

// Store is a BoltDB backed quarantine. It is safe for concurrent use.
type Store struct {
	db     *bolt.DB
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	pruneCron *cron.Cron
	closeOnce sync.Once

	stored *atomic.Int64
	pruned *atomic.Int64
	closed *atomic.Bool
}

// Open opens or creates the store at cfg.Path. A nil logger discards output.
func Open(cfg Config, logger *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid quarantine config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create quarantine directory: %w", err)
	}

	db, err := bolt.Open(cfg.Path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open quarantine database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSpans)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create quarantine bucket: %w", err)
	}

	logger.Info("Quarantine store opened",
		zap.String("path", cfg.Path),
		zap.Duration("retention", cfg.Retention))

	return &Store{
		db:     db,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		stored: atomic.NewInt64(0),
		pruned: atomic.NewInt64(0),
		closed: atomic.NewBool(false),
	}, nil
}

// Key returns the key a payload is stored under.
func Key(payload []byte) uint64 {
	return xxhash.Sum64(payload)
}

func encodeKey(key uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, key)
	return b
}

// Put stores a payload with the reason it was rejected. Storing the same payload
// again replaces the earlier record.
func (s *Store) Put(ctx context.Context, source string, payload []byte, reason string) (uint64, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	key := Key(payload)
	value, err := json.Marshal(Record{
		Source:        source,
		Reason:        reason,
		Payload:       payload,
		QuarantinedAt: s.now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode quarantine record: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSpans).Put(encodeKey(key), value)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to write quarantine record: %w", err)
	}

	s.stored.Inc()
	s.logger.Debug("Span quarantined",
		zap.Uint64("key", key),
		zap.String("source", source),
		zap.String("reason", reason))
	return key, nil
}

// Get returns the record stored under key.
func (s *Store) Get(key uint64) (Record, error) {
	if s.closed.Load() {
		return Record{}, ErrClosed
	}

	var rec Record
	err := s.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(bucketSpans).Get(encodeKey(key))
		if value == nil {
			return ErrNotFound
		}
		return decodeRecord(key, value, &rec)
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns every record ordered by key.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSpans).ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec Record
			if err := decodeRecord(binary.BigEndian.Uint64(k), v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list quarantine records: %w", err)
	}
	return records, nil
}

// Delete removes the record stored under key. Deleting a missing key is not an error.
func (s *Store) Delete(key uint64) error {
	if s.closed.Load() {
		return ErrClosed
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSpans).Delete(encodeKey(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete quarantine record: %w", err)
	}
	return nil
}

// Prune removes records quarantined before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}

	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSpans)

		var expired [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				s.logger.Warn("Removing unreadable quarantine record", zap.Error(err))
				expired = append(expired, append([]byte(nil), k...))
				return nil
			}
			if rec.QuarantinedAt.Before(cutoff) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune quarantine: %w", err)
	}

	s.pruned.Add(int64(removed))
	if removed > 0 {
		s.logger.Info("Pruned quarantine",
			zap.Int("removed", removed),
			zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

// Count returns the number of stored records.
func (s *Store) Count() (int, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketSpans).Stats().KeyN
		return nil
	})
	return n, err
}

// StartPruning schedules pruning of expired records on cfg.PruneSchedule. It is a
// no-op when no schedule is configured.
func (s *Store) StartPruning() error {
	if s.cfg.PruneSchedule == "" || s.pruneCron != nil {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(s.cfg.PruneSchedule, func() {
		if _, err := s.Prune(context.Background(), s.now().Add(-s.cfg.Retention)); err != nil {
			s.logger.Error("Quarantine pruning failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule quarantine pruning: %w", err)
	}
	c.Start()
	s.pruneCron = c

	s.logger.Info("Quarantine pruning scheduled",
		zap.String("schedule", s.cfg.PruneSchedule),
		zap.Duration("retention", s.cfg.Retention))
	return nil
}

// Stored returns how many records were written since the store was opened.
func (s *Store) Stored() int64 {
	return s.stored.Load()
}

// Pruned returns how many records pruning removed since the store was opened.
func (s *Store) Pruned() int64 {
	return s.pruned.Load()
}

// Close stops scheduled pruning and closes the database. It is safe to call more
// than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.pruneCron != nil {
			<-s.pruneCron.Stop().Done()
		}
		if cerr := s.db.Close(); cerr != nil {
			err = fmt.Errorf("failed to close quarantine database: %w", cerr)
		}
	})
	return err
}

func (s *Store) check(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func decodeRecord(key uint64, value []byte, rec *Record) error {
	if err := json.Unmarshal(value, rec); err != nil {
		return fmt.Errorf("failed to decode quarantine record %d: %w", key, err)
	}
	rec.Key = key
	return nil
}
