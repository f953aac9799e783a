// Package resolver maps a free-text player or team name onto the canonical
// reference records.
//
// Resolution first tries an exact, case-insensitive match against players
// and then teams. On a miss, both name lists are scored with a Matcher and
// the single best candidate wins. The players list wins exact score ties so
// the outcome is deterministic.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Divas-Gupta30/esports-agent/internal/storage"
)

// ErrNoCandidates is returned by BestMatch when both reference lists are empty.
var ErrNoCandidates = errors.New("no reference names to match against")

// ReferenceSet is the canonical name source.
type ReferenceSet interface {
	NameExists(ctx context.Context, set, name string) (bool, error)
	Names(ctx context.Context, set string) ([]string, error)
}

// Match is the outcome of a fuzzy lookup.
type Match struct {
	Name  string
	Score int
	Set   string
}

type Resolver struct {
	refs    ReferenceSet
	matcher Matcher
}

func New(refs ReferenceSet, matcher Matcher) *Resolver {
	if matcher == nil {
		matcher = LevenshteinMatcher{}
	}
	return &Resolver{refs: refs, matcher: matcher}
}

// Exists checks players, then teams.
func (r *Resolver) Exists(ctx context.Context, name string) (bool, error) {
	for _, set := range []string{storage.Players, storage.Teams} {
		ok, err := r.refs.NameExists(ctx, set, name)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// BestMatch scores name against the full players and teams lists and
// returns the best candidate across both.
func (r *Resolver) BestMatch(ctx context.Context, name string) (Match, error) {
	var players, teams []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		players, err = r.refs.Names(gctx, storage.Players)
		if err != nil {
			return fmt.Errorf("load %s: %w", storage.Players, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		teams, err = r.refs.Names(gctx, storage.Teams)
		if err != nil {
			return fmt.Errorf("load %s: %w", storage.Teams, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Match{}, err
	}
	return r.pick(name, players, teams)
}

func (r *Resolver) pick(name string, players, teams []string) (Match, error) {
	if len(players) == 0 && len(teams) == 0 {
		return Match{}, ErrNoCandidates
	}
	best := Match{Score: -1}
	if len(players) > 0 {
		n, s := r.matcher.Best(name, players)
		best = Match{Name: n, Score: s, Set: storage.Players}
	}
	if len(teams) > 0 {
		n, s := r.matcher.Best(name, teams)
		// strictly greater: players keep ties
		if s > best.Score {
			best = Match{Name: n, Score: s, Set: storage.Teams}
		}
	}
	return best, nil
}

// Substitute replaces the first literal occurrence of name in query with
// replacement. A query that never mentions name is returned unchanged.
func Substitute(query, name, replacement string) string {
	if name == "" {
		return query
	}
	return strings.Replace(query, name, replacement, 1)
}
