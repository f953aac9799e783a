package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divas-Gupta30/esports-agent/internal/llm"
	"github.com/Divas-Gupta30/esports-agent/internal/logging"
	"github.com/Divas-Gupta30/esports-agent/internal/metrics"
	"github.com/Divas-Gupta30/esports-agent/internal/prompts"
	"github.com/Divas-Gupta30/esports-agent/internal/resolver"
	"github.com/Divas-Gupta30/esports-agent/internal/storage"
)

// scriptedLLM answers each prompt kind with a canned reply, keyed on the
// opening sentence of the prompt.
type scriptedLLM struct {
	mu          sync.Mutex
	route       string
	routeErr    error
	name        string
	sql         string
	corrections []string
	summary     string
	followUp    string
	calls       map[string]int
}

func (s *scriptedLLM) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	switch {
	case strings.HasPrefix(prompt, "You need to decide"):
		s.calls["route"]++
		if s.routeErr != nil {
			return "", s.routeErr
		}
		return s.route, nil
	case strings.HasPrefix(prompt, "Extract the name"):
		s.calls["extract"]++
		return s.name, nil
	case strings.HasPrefix(prompt, "Your task is to interpret"):
		s.calls["generate"]++
		return s.sql, nil
	case strings.HasPrefix(prompt, "An error has occurred"):
		n := s.calls["correct"]
		s.calls["correct"]++
		if n < len(s.corrections) {
			return s.corrections[n], nil
		}
		return s.sql, nil
	case strings.HasPrefix(prompt, "Summarize the results"):
		s.calls["summarize"]++
		return s.summary, nil
	case strings.HasPrefix(prompt, "Answer the user's follow up"):
		s.calls["follow_up"]++
		return s.followUp, nil
	}
	return "", errors.New("unexpected prompt: " + prompt)
}

func (s *scriptedLLM) count(kind string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[kind]
}

// fakeExecutor replays results in order; the last entry repeats.
type fakeExecutor struct {
	mu      sync.Mutex
	results []execResult
	queries []string
}

type execResult struct {
	rows []storage.Row
	err  error
}

func (f *fakeExecutor) Query(ctx context.Context, query string) ([]storage.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if len(f.results) == 0 {
		return []storage.Row{}, nil
	}
	r := f.results[0]
	if len(f.results) > 1 {
		f.results = f.results[1:]
	}
	return r.rows, r.err
}

type refSet map[string][]string

func (r refSet) NameExists(ctx context.Context, set, name string) (bool, error) {
	for _, n := range r[set] {
		if strings.EqualFold(n, name) {
			return true, nil
		}
	}
	return false, nil
}

func (r refSet) Names(ctx context.Context, set string) ([]string, error) {
	return r[set], nil
}

type mapStore struct {
	mu     sync.Mutex
	states map[string]State
	saves  int
}

func newMapStore() *mapStore {
	return &mapStore{states: map[string]State{}}
}

func (m *mapStore) Load(ctx context.Context, id string) (*State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return nil, ErrNoState
	}
	return &st, nil
}

func (m *mapStore) Save(ctx context.Context, id string, s *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Version++
	m.states[id] = *s
	m.saves++
	return nil
}

func (m *mapStore) get(id string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	return st, ok
}

func defaultRefs() refSet {
	return refSet{
		storage.Players: {"Ax1Le", "Interz", "HeavyGod"},
		storage.Teams:   {"Cloud9", "Natus Vincere"},
	}
}

type fixture struct {
	llm     *scriptedLLM
	exec    *fakeExecutor
	store   *mapStore
	metrics *metrics.Metrics
	engine  *Engine
}

func newFixture(t *testing.T, l *scriptedLLM, exec *fakeExecutor, opts ...func(*Deps)) *fixture {
	t.Helper()
	f := &fixture{llm: l, exec: exec, store: newMapStore(), metrics: metrics.New(nil)}
	d := Deps{
		Chat:         l,
		Executor:     exec,
		Resolver:     resolver.New(defaultRefs(), nil),
		Sessions:     f.store,
		Prompts:      &prompts.Builder{Schema: "players: name TEXT PK\n", Dialect: "sqlite", Hints: prompts.DefaultHints()},
		Metrics:      f.metrics,
		Logger:       logging.Discard(),
		CallTimeout:  time.Second,
		MinNameScore: 60,
		Now:          func() time.Time { return time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC) },
	}
	for _, o := range opts {
		o(&d)
	}
	e, err := New(d)
	require.NoError(t, err)
	f.engine = e
	return f
}

func sqlErr(query, msg string) error {
	return &storage.QueryError{Query: query, Err: errors.New(msg)}
}

func killsRows() []storage.Row {
	return []storage.Row{{"name": "Ax1Le", "kills": int64(42)}}
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)

	_, err = New(Deps{Chat: &scriptedLLM{}, Executor: &fakeExecutor{}})
	assert.Error(t, err)
}

func TestRunTurnExactMatch(t *testing.T) {
	l := &scriptedLLM{
		route:   "API",
		name:    "Ax1Le",
		sql:     "SELECT kills FROM player_stats WHERE name = 'Ax1Le' COLLATE NOCASE",
		summary: "Ax1Le has 42 kills.",
	}
	exec := &fakeExecutor{results: []execResult{{rows: killsRows()}}}
	f := newFixture(t, l, exec)

	res, err := f.engine.RunTurn(context.Background(), "How many kills does Ax1Le have?", "s1")
	require.NoError(t, err)
	assert.Equal(t, "Ax1Le has 42 kills.", res.Summary)
	assert.Equal(t, PathAPI, res.Path)
	assert.Equal(t, 0, res.RetryCount)
	assert.Equal(t, []string{l.sql}, exec.queries)

	st, ok := f.store.get("s1")
	require.True(t, ok)
	assert.Equal(t, "Ax1Le", st.Name)
	require.NotNil(t, st.NameExists)
	assert.True(t, *st.NameExists)
	assert.Empty(t, st.BestNameMatch)
	assert.Equal(t, killsRows(), st.SQLQueryResults)
	assert.Equal(t, "March 5, 2024", st.CurrentDate)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NameResolutions.WithLabelValues("exact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TurnsTotal.WithLabelValues("api", "success")))
}

func TestRunTurnFuzzyMatchAdjustsQuery(t *testing.T) {
	l := &scriptedLLM{
		route:   "API",
		name:    "Cloud 9",
		sql:     "SELECT * FROM matches WHERE team = 'Cloud 9' OR opponent = 'Cloud 9'",
		summary: "Cloud9 played 3 matches.",
	}
	exec := &fakeExecutor{results: []execResult{{rows: []storage.Row{{"id": int64(1)}}}}}
	f := newFixture(t, l, exec)

	_, err := f.engine.RunTurn(context.Background(), "Show me matches for Cloud 9", "s1")
	require.NoError(t, err)

	require.Len(t, exec.queries, 1)
	assert.Equal(t, "SELECT * FROM matches WHERE team = 'Cloud9' OR opponent = 'Cloud 9'", exec.queries[0])

	st, _ := f.store.get("s1")
	require.NotNil(t, st.NameExists)
	assert.False(t, *st.NameExists)
	assert.Equal(t, "Cloud9", st.BestNameMatch)
	assert.Equal(t, 100, st.BestNameScore)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NameResolutions.WithLabelValues("fuzzy")))
}

func TestRunTurnLowScoreLeavesQueryAlone(t *testing.T) {
	l := &scriptedLLM{
		route:   "API",
		name:    "qqqqqq",
		sql:     "SELECT * FROM players WHERE name = 'qqqqqq'",
		summary: "Nothing found.",
	}
	exec := &fakeExecutor{}
	f := newFixture(t, l, exec)

	_, err := f.engine.RunTurn(context.Background(), "stats for qqqqqq", "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{l.sql}, exec.queries)

	st, _ := f.store.get("s1")
	assert.NotEmpty(t, st.BestNameMatch)
	assert.Less(t, st.BestNameScore, 60)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.NameResolutions.WithLabelValues("unresolved")))
}

func TestRunTurnEmptyResultIsSummarized(t *testing.T) {
	l := &scriptedLLM{route: "API", name: "Ax1Le", sql: "SELECT 1 WHERE 0", summary: "No data."}
	exec := &fakeExecutor{results: []execResult{{rows: []storage.Row{}}}}
	f := newFixture(t, l, exec)

	res, err := f.engine.RunTurn(context.Background(), "anything on Ax1Le?", "s1")
	require.NoError(t, err)
	assert.Equal(t, "No data.", res.Summary)
	assert.Len(t, exec.queries, 1)
}

func TestRunTurnCorrectsFailingQuery(t *testing.T) {
	l := &scriptedLLM{
		route:       "API",
		name:        "Ax1Le",
		sql:         "SELECT kill FROM player_stats",
		corrections: []string{"```sql\nSELECT kills FROM player_stats\n```"},
		summary:     "42 kills.",
	}
	exec := &fakeExecutor{results: []execResult{
		{err: &storage.QueryError{Query: "SELECT kill FROM player_stats", Err: errors.New("no such column: kill")}},
		{rows: killsRows()},
	}}
	f := newFixture(t, l, exec)

	res, err := f.engine.RunTurn(context.Background(), "How many kills does Ax1Le have?", "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.RetryCount)
	assert.Equal(t, "SELECT kills FROM player_stats", res.SQLQuery)
	assert.Equal(t, []string{"SELECT kill FROM player_stats", "SELECT kills FROM player_stats"}, exec.queries)

	st, _ := f.store.get("s1")
	assert.Empty(t, st.SQLError)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CorrectionsTotal))
}

func TestRunTurnRetriesExhausted(t *testing.T) {
	l := &scriptedLLM{route: "API", name: "Ax1Le", sql: "SELECT broken", summary: "unused"}
	exec := &fakeExecutor{results: []execResult{{err: sqlErr("SELECT broken", "syntax error")}}}
	f := newFixture(t, l, exec)

	res, err := f.engine.RunTurn(context.Background(), "How many kills does Ax1Le have?", "s1")
	require.ErrorIs(t, err, ErrRetryExhausted)
	assert.Nil(t, res)

	assert.Len(t, exec.queries, MaxRetries+1)
	assert.Equal(t, MaxRetries, l.count("correct"))
	assert.Zero(t, l.count("summarize"))

	st, ok := f.store.get("s1")
	require.True(t, ok, "exhausted turn is persisted")
	assert.Equal(t, MaxRetries, st.RetryCount)
	assert.Equal(t, "syntax error", st.SQLError)
	assert.Nil(t, st.SQLQueryResults)
	assert.Empty(t, st.Summary)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TurnsTotal.WithLabelValues("api", "retry_exhausted")))
}

func TestRetryCountTracksConsecutiveFailures(t *testing.T) {
	tests := []struct {
		failures  int
		wantRetry int
		wantExecs int
		wantErr   error
	}{
		{failures: 1, wantRetry: 1, wantExecs: 2},
		{failures: 2, wantRetry: 2, wantExecs: 3},
		{failures: 3, wantRetry: 3, wantExecs: 4},
		{failures: 4, wantRetry: 3, wantExecs: 4, wantErr: ErrRetryExhausted},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d failures", tt.failures), func(t *testing.T) {
			l := &scriptedLLM{route: "API", name: "Ax1Le", sql: "SELECT kill FROM player_stats", summary: "42."}
			var results []execResult
			for i := 0; i < tt.failures; i++ {
				results = append(results, execResult{err: sqlErr("SELECT kill FROM player_stats", "no such column: kill")})
			}
			exec := &fakeExecutor{results: append(results, execResult{rows: killsRows()})}
			f := newFixture(t, l, exec)

			_, err := f.engine.RunTurn(context.Background(), "How many kills does Ax1Le have?", "s1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, exec.queries, tt.wantExecs)
			assert.Equal(t, tt.wantRetry, l.count("correct"))

			st, ok := f.store.get("s1")
			require.True(t, ok)
			assert.Equal(t, tt.wantRetry, st.RetryCount)
		})
	}
}

func TestConnectionFailureIsNotCorrected(t *testing.T) {
	l := &scriptedLLM{route: "API", name: "Ax1Le", sql: "SELECT kills FROM player_stats", summary: "unused"}
	exec := &fakeExecutor{results: []execResult{{err: fmt.Errorf("acquire connection: %w", errors.New("connection refused"))}}}
	f := newFixture(t, l, exec)

	_, err := f.engine.RunTurn(context.Background(), "How many kills does Ax1Le have?", "s1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetryExhausted)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Len(t, exec.queries, 1)
	assert.Zero(t, l.count("correct"))
	assert.Zero(t, testutil.ToFloat64(f.metrics.CorrectionsTotal))
}

func TestRetryCountResetsOnFreshLookup(t *testing.T) {
	l := &scriptedLLM{route: "API", name: "Ax1Le", sql: "SELECT kills FROM player_stats", summary: "42."}
	exec := &fakeExecutor{results: []execResult{{rows: killsRows()}}}
	f := newFixture(t, l, exec)
	f.store.states["s1"] = State{OriginalQuery: "old", PathDecision: PathAPI, RetryCount: MaxRetries, SQLError: "old failure"}

	res, err := f.engine.RunTurn(context.Background(), "How many kills does Ax1Le have?", "s1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.RetryCount)
}

func TestRunTurnFollowUpUsesStoredResults(t *testing.T) {
	l := &scriptedLLM{route: "Follow Up", followUp: "He had 42 kills, the most on his team."}
	exec := &fakeExecutor{}
	f := newFixture(t, l, exec)
	f.store.states["s1"] = State{
		OriginalQuery:   "How many kills does Ax1Le have?",
		PathDecision:    PathAPI,
		SQLQuery:        "SELECT kills FROM player_stats",
		SQLQueryResults: killsRows(),
		Summary:         "Ax1Le has 42 kills.",
	}

	res, err := f.engine.RunTurn(context.Background(), "Is that a lot?", "s1")
	require.NoError(t, err)
	assert.Equal(t, PathFollowUp, res.Path)
	assert.Equal(t, "He had 42 kills, the most on his team.", res.Summary)
	assert.Empty(t, exec.queries)
	assert.Zero(t, l.count("generate"))

	st, _ := f.store.get("s1")
	assert.Equal(t, "Is that a lot?", st.OriginalQuery)
	assert.Equal(t, killsRows(), st.SQLQueryResults)
	assert.Equal(t, "SELECT kills FROM player_stats", st.SQLQuery)
}

func TestFollowUpWithoutResultsBecomesLookup(t *testing.T) {
	l := &scriptedLLM{route: "Follow Up", name: "Ax1Le", sql: "SELECT kills FROM player_stats", summary: "42."}
	exec := &fakeExecutor{results: []execResult{{rows: killsRows()}}}
	f := newFixture(t, l, exec)

	res, err := f.engine.RunTurn(context.Background(), "and his kills?", "fresh")
	require.NoError(t, err)
	assert.Equal(t, PathAPI, res.Path)
	assert.Len(t, exec.queries, 1)
	assert.Zero(t, l.count("follow_up"))
}

func TestRouterFailure(t *testing.T) {
	tests := []struct {
		name string
		llm  *scriptedLLM
	}{
		{name: "unrecognised label", llm: &scriptedLLM{route: "maybe later"}},
		{name: "empty completion", llm: &scriptedLLM{routeErr: llm.ErrEmptyCompletion}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.llm, &fakeExecutor{})
			_, err := f.engine.RunTurn(context.Background(), "How many kills does Ax1Le have?", "s1")
			require.ErrorIs(t, err, ErrRouterFailure)

			var nodeErr *NodeError
			require.ErrorAs(t, err, &nodeErr)
			assert.Equal(t, NodeRouter, nodeErr.Node)
			assert.Zero(t, f.store.saves)
		})
	}
}

func TestEmptyGeneratedQueryFails(t *testing.T) {
	l := &scriptedLLM{route: "API", name: "Ax1Le", sql: "```\n```"}
	f := newFixture(t, l, &fakeExecutor{})

	_, err := f.engine.RunTurn(context.Background(), "How many kills does Ax1Le have?", "s1")
	require.ErrorIs(t, err, llm.ErrEmptyCompletion)
	assert.Empty(t, f.exec.queries)
}

func TestEmptyQuestion(t *testing.T) {
	f := newFixture(t, &scriptedLLM{}, &fakeExecutor{})
	_, err := f.engine.RunTurn(context.Background(), "   ", "s1")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
}

type blockingExecutor struct{}

func (blockingExecutor) Query(ctx context.Context, query string) ([]storage.Row, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestQueryTimeout(t *testing.T) {
	l := &scriptedLLM{route: "API", name: "Ax1Le", sql: "SELECT 1"}
	f := newFixture(t, l, &fakeExecutor{}, func(d *Deps) {
		d.Executor = blockingExecutor{}
		d.CallTimeout = 20 * time.Millisecond
	})

	_, err := f.engine.RunTurn(context.Background(), "How many kills does Ax1Le have?", "s1")
	require.ErrorIs(t, err, ErrCallTimeout)
	assert.Zero(t, l.count("correct"), "timeouts are not corrected")
}

type countingExecutor struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (c *countingExecutor) Query(ctx context.Context, query string) ([]storage.Row, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return killsRows(), nil
}

func TestSameSessionTurnsAreSerialized(t *testing.T) {
	l := &scriptedLLM{route: "API", name: "Ax1Le", sql: "SELECT kills FROM player_stats", summary: "42."}
	exec := &countingExecutor{}
	f := newFixture(t, l, &fakeExecutor{}, func(d *Deps) { d.Executor = exec })

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.RunTurn(context.Background(), "How many kills does Ax1Le have?", "shared")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), exec.peak.Load())
	assert.Equal(t, 8, f.store.saves)
	assert.Zero(t, f.engine.locks.size())
}
