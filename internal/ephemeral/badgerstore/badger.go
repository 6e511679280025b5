// Package badgerstore implements the ephemeral store on an embedded Badger
// database for single-node deployments without a Redis.
package badgerstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/reelscript/reelscript/internal/ephemeral"
)

type Store struct {
	db *badger.DB
}

// Open opens (or creates) the Badger database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var out int64
	err := s.db.Update(func(txn *badger.Txn) error {
		var cur int64
		existing := false
		item, err := txn.Get([]byte(key))
		switch {
		case err == nil:
			existing = true
			if err := item.Value(func(v []byte) error {
				cur, _ = strconv.ParseInt(string(v), 10, 64)
				return nil
			}); err != nil {
				return err
			}
		case errors.Is(err, badger.ErrKeyNotFound):
			// first increment creates the key and anchors the window
		default:
			return err
		}
		out = cur + 1
		e := badger.NewEntry([]byte(key), []byte(strconv.FormatInt(out, 10)))
		if !existing && ttl > 0 {
			e = e.WithTTL(ttl)
		} else if existing && item.ExpiresAt() > 0 {
			remaining := time.Until(time.Unix(int64(item.ExpiresAt()), 0))
			if remaining > 0 {
				e = e.WithTTL(remaining)
			}
		}
		return txn.SetEntry(e)
	})
	return out, err
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var val string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			val = string(v)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *Store) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	var d time.Duration
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		if exp := item.ExpiresAt(); exp > 0 {
			d = time.Until(time.Unix(int64(exp), 0))
			if d < 0 {
				d = 0
			}
		}
		return nil
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, ephemeral.ErrNoKey
	}
	return d, err
}

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), []byte(value))
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

func (s *Store) Del(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return out, err
}

func (s *Store) HealthPing(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

var _ ephemeral.Store = (*Store)(nil)
