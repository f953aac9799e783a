// Package session persists per-conversation workflow state between turns.
//
// Every Store performs compare-and-swap on State.Version: Save succeeds only
// when the stored version still equals the version the caller loaded (zero
// for a session that does not exist yet), and bumps it on success. A record
// that expired or vanished while the caller held it does not block the save,
// so a turn that outlives the TTL still keeps its result.
//
//	store := session.NewMemoryStore(0)
//	st, err := store.Load(ctx, "abc")
//	...
//	err = store.Save(ctx, "abc", st) // ErrConflict if someone else saved first
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Divas-Gupta30/esports-agent/internal/graph"
)

// ErrNotFound is returned by Load when a session has no stored state.
var ErrNotFound = graph.ErrNoState

// ErrConflict is returned by Save when the stored version moved on since
// the state was loaded.
var ErrConflict = errors.New("session state was modified concurrently")

// Store is a durable home for session state.
type Store interface {
	Load(ctx context.Context, id string) (*graph.State, error)
	Save(ctx context.Context, id string, st *graph.State) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Options selects and configures a backend.
type Options struct {
	Backend string // memory, redis, bolt or postgres

	// TTL expires idle sessions. Zero keeps them forever.
	TTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Path        string // bolt file
	DatabaseURL string // postgres
}

// Open builds the Store named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemoryStore(opts.TTL), nil
	case "redis":
		return NewRedisStore(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.TTL)
	case "bolt":
		return NewBoltStore(opts.Path, opts.TTL)
	case "postgres":
		return NewPostgresStore(ctx, opts.DatabaseURL, opts.TTL)
	}
	return nil, fmt.Errorf("unknown session backend %q", opts.Backend)
}

func encode(st *graph.State) ([]byte, error) {
	b, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("encoding session state: %w", err)
	}
	return b, nil
}

// decode keeps numbers in result rows as json.Number so large integer ids
// survive the round trip.
func decode(b []byte) (*graph.State, error) {
	var st graph.State
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&st); err != nil {
		return nil, fmt.Errorf("decoding session state: %w", err)
	}
	return &st, nil
}

// expired reports whether st has been idle for longer than ttl.
func expired(st *graph.State, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && !st.UpdatedAt.IsZero() && now.Sub(st.UpdatedAt) > ttl
}

// conflicts reports whether a save based on version must be rejected given
// the stored record (nil when absent). An expired record accepts a new
// session as well as the holder of its last version.
func conflicts(stored *graph.State, version int64, ttl time.Duration, now time.Time) bool {
	switch {
	case stored == nil:
		return false
	case stored.Version == version:
		return false
	case expired(stored, ttl, now):
		return version != 0
	}
	return true
}

// next returns the stored copy of st for a successful save: version bumped
// and timestamp set when the caller left it empty.
func next(st *graph.State, now time.Time) *graph.State {
	cp := *st
	cp.Version = st.Version + 1
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = now
	}
	return &cp
}
