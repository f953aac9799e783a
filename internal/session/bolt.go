package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Divas-Gupta30/esports-agent/internal/graph"
)

var sessionsBucket = []byte("sessions")

// BoltStore keeps sessions in a single bbolt file, one key per session.
type BoltStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// NewBoltStore opens (or creates) the database at path.
func NewBoltStore(path string, ttl time.Duration) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening session db %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db, ttl: ttl, now: time.Now}, nil
}

func (s *BoltStore) Load(ctx context.Context, id string) (*graph.State, error) {
	var st *graph.State
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionsBucket).Get([]byte(id))
		if v == nil {
			return ErrNotFound
		}
		var err error
		st, err = decode(v)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired(st, s.ttl, s.now()) {
		return nil, ErrNotFound
	}
	return st, nil
}

func (s *BoltStore) Save(ctx context.Context, id string, st *graph.State) error {
	saved := next(st, s.now())
	b, err := encode(saved)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(sessionsBucket)
		var stored *graph.State
		if v := bucket.Get([]byte(id)); v != nil {
			var err error
			if stored, err = decode(v); err != nil {
				return err
			}
		}
		if conflicts(stored, st.Version, s.ttl, s.now()) {
			return ErrConflict
		}
		return bucket.Put([]byte(id), b)
	})
	if err != nil {
		return err
	}
	st.Version = saved.Version
	st.UpdatedAt = saved.UpdatedAt
	return nil
}

func (s *BoltStore) Delete(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).Delete([]byte(id))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
