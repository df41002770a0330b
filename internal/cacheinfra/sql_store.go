package cacheinfra

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/uptrace/bun"
)

type cacheRow struct {
	bun.BaseModel `bun:"table:readmodel_cache,alias:rc"`

	Key       string `bun:"cache_key,pk"`
	Value     []byte `bun:"value,notnull"`
	ExpiresAt int64  `bun:"expires_at,notnull"`
}

type cacheTagRow struct {
	bun.BaseModel `bun:"table:readmodel_cache_tags,alias:rct"`

	Tag string `bun:"tag,pk"`
	Key string `bun:"cache_key,pk"`
}

// SQLStore keeps entries in a relational table through bun. It works with
// the sqlite and postgres dialects. Expiry is stored as unix milliseconds,
// zero meaning no expiry.
type SQLStore struct {
	db    bun.IDB
	clock clockwork.Clock
}

// SQLOption configures a SQLStore.
type SQLOption func(*SQLStore)

// WithSQLClock sets the clock used for expiry.
func WithSQLClock(clock clockwork.Clock) SQLOption {
	return func(s *SQLStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewSQLStore wraps db. Call CreateSchema once before use.
func NewSQLStore(db bun.IDB, opts ...SQLOption) *SQLStore {
	s := &SQLStore{db: db, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSchema creates the cache tables when missing.
func (s *SQLStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*cacheRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	if _, err := s.db.NewCreateTable().Model((*cacheTagRow)(nil)).IfNotExists().Exec(ctx); err != nil {
		return err
	}
	_, err := s.db.NewCreateIndex().
		Model((*cacheTagRow)(nil)).
		Index("readmodel_cache_tags_key_idx").
		Column("cache_key").
		IfNotExists().
		Exec(ctx)
	return err
}

func (s *SQLStore) now() int64 {
	return s.clock.Now().UnixMilli()
}

func (s *SQLStore) expiry(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.clock.Now().Add(ttl).UnixMilli()
}

func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var row cacheRow
	err := s.db.NewSelect().Model(&row).Where("cache_key = ?", key).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if row.ExpiresAt != 0 && s.now() >= row.ExpiresAt {
		return nil, false, nil
	}
	return row.Value, true, nil
}

func (s *SQLStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.PutTagged(ctx, key, value, ttl, nil)
}

func (s *SQLStore) upsert(ctx context.Context, db bun.IDB, key string, value []byte, ttl time.Duration) error {
	row := &cacheRow{Key: key, Value: value, ExpiresAt: s.expiry(ttl)}
	_, err := db.NewInsert().
		Model(row).
		On("CONFLICT (cache_key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	return err
}

// PutTagged writes the entry and replaces its tag rows in one transaction.
func (s *SQLStore) PutTagged(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := s.upsert(ctx, tx, key, value, ttl); err != nil {
			return err
		}
		if _, err := tx.NewDelete().Model((*cacheTagRow)(nil)).Where("cache_key = ?", key).Exec(ctx); err != nil {
			return err
		}
		if len(tags) == 0 {
			return nil
		}
		rows := make([]cacheTagRow, 0, len(tags))
		for _, tag := range tags {
			rows = append(rows, cacheTagRow{Tag: tag, Key: key})
		}
		_, err := tx.NewInsert().
			Model(&rows).
			On("CONFLICT (tag, cache_key) DO NOTHING").
			Exec(ctx)
		return err
	})
}

// Add inserts the entry unless a live one exists. An expired row is
// replaced.
func (s *SQLStore) Add(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var added bool
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*cacheRow)(nil)).
			Where("cache_key = ?", key).
			Where("expires_at != 0").
			Where("expires_at <= ?", s.now()).
			Exec(ctx)
		if err != nil {
			return err
		}

		res, err := tx.NewInsert().
			Model(&cacheRow{Key: key, Value: value, ExpiresAt: s.expiry(ttl)}).
			On("CONFLICT (cache_key) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		added = n == 1
		return nil
	})
	return added, err
}

func (s *SQLStore) Forget(ctx context.Context, key string) error {
	return s.deleteKeys(ctx, []string{key})
}

func (s *SQLStore) deleteKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*cacheRow)(nil)).Where("cache_key IN (?)", bun.In(keys)).Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*cacheTagRow)(nil)).Where("cache_key IN (?)", bun.In(keys)).Exec(ctx)
		return err
	})
}

// FlushTags deletes every entry tagged with any of tags.
func (s *SQLStore) FlushTags(ctx context.Context, tags ...string) error {
	if len(tags) == 0 {
		return nil
	}
	var keys []string
	err := s.db.NewSelect().
		Model((*cacheTagRow)(nil)).
		Column("cache_key").
		Where("tag IN (?)", bun.In(tags)).
		Distinct().
		Scan(ctx, &keys)
	if err != nil {
		return err
	}
	if err := s.deleteKeys(ctx, keys); err != nil {
		return err
	}
	_, err = s.db.NewDelete().Model((*cacheTagRow)(nil)).Where("tag IN (?)", bun.In(tags)).Exec(ctx)
	return err
}

// ForgetPrefix deletes every key starting with prefix.
func (s *SQLStore) ForgetPrefix(ctx context.Context, prefix string) (int, error) {
	var candidates []string
	err := s.db.NewSelect().
		Model((*cacheRow)(nil)).
		Column("cache_key").
		Where("cache_key LIKE ?", prefix+"%").
		Scan(ctx, &candidates)
	if err != nil {
		return 0, err
	}

	// LIKE treats "_" as a wildcard and may fold case
	keys := candidates[:0]
	for _, key := range candidates {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	if err := s.deleteKeys(ctx, keys); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// PurgeExpired removes expired rows and reports how many were deleted.
func (s *SQLStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := s.db.NewDelete().
		Model((*cacheRow)(nil)).
		Where("expires_at != 0").
		Where("expires_at <= ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLStore) Flush(ctx context.Context) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*cacheRow)(nil)).Where("1 = 1").Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().Model((*cacheTagRow)(nil)).Where("1 = 1").Exec(ctx)
		return err
	})
}

func (s *SQLStore) Durable() bool {
	return true
}
