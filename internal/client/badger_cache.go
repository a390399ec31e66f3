package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const membershipPrefix = "membership/"

// BadgerConfig configures a BadgerCache.
type BadgerConfig struct {
	// Path is the database directory. Required unless InMemory is set.
	Path     string
	InMemory bool
	// Logger receives Badger's internal messages. Nil silences them.
	Logger *slog.Logger
	// GCInterval enables periodic value log GC for on-disk caches.
	GCInterval time.Duration
}

// BadgerCache is a Cache persisted in a Badger database.
type BadgerCache struct {
	db     *badger.DB
	gcStop chan struct{}
	gcDone chan struct{}
	logger *slog.Logger
}

// OpenBadgerCache opens or creates the cache database.
func OpenBadgerCache(cfg BadgerConfig) (*BadgerCache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}

	c := &BadgerCache{db: db, logger: cfg.Logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		c.gcStop = make(chan struct{})
		c.gcDone = make(chan struct{})
		go c.runGC(cfg.GCInterval)
	}
	return c, nil
}

func (c *BadgerCache) Put(m Membership) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode membership: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(membershipKey(m.GroupID), data)
	})
}

func (c *BadgerCache) Get(groupID string) (Membership, bool, error) {
	var m Membership
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(membershipKey(groupID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Membership{}, false, nil
	}
	if err != nil {
		return Membership{}, false, fmt.Errorf("read membership %s: %w", groupID, err)
	}
	return m, true, nil
}

// List iterates keys in order, so memberships come back sorted by group ID.
func (c *BadgerCache) List() ([]Membership, error) {
	var out []Membership
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(membershipPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var m Membership
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *BadgerCache) Delete(groupID string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(membershipKey(groupID))
	})
}

// Close stops GC and closes the database.
func (c *BadgerCache) Close() error {
	if c.gcStop != nil {
		close(c.gcStop)
		<-c.gcDone
	}
	return c.db.Close()
}

func (c *BadgerCache) runGC(interval time.Duration) {
	defer close(c.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.gcStop:
			return
		case <-ticker.C:
			err := c.db.RunValueLogGC(0.5)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && c.logger != nil {
				c.logger.Warn("cache value log GC error", "error", err)
			}
		}
	}
}

func membershipKey(groupID string) []byte {
	return []byte(membershipPrefix + groupID)
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
