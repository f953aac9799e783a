// Package graph runs the query-resolution workflow for one conversational
// turn: route the question, build and resolve a SQL query, execute it with a
// bounded correction loop, and summarise the result.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Divas-Gupta30/esports-agent/internal/llm"
	"github.com/Divas-Gupta30/esports-agent/internal/logging"
	"github.com/Divas-Gupta30/esports-agent/internal/metrics"
	"github.com/Divas-Gupta30/esports-agent/internal/prompts"
	"github.com/Divas-Gupta30/esports-agent/internal/resolver"
	"github.com/Divas-Gupta30/esports-agent/internal/storage"
)

// maxSteps caps node executions per turn. The longest legal path is
// router, extract, generate, resolve, fuzzy, adjust, then four executions
// with three corrections in between and a summary: 14 steps.
const maxSteps = 32

// ErrNoState is returned by a SessionStore that has nothing for a session.
var ErrNoState = errors.New("no stored state for session")

// ErrEmptyQuestion rejects turns without a question.
var ErrEmptyQuestion = errors.New("question is empty")

// QueryExecutor runs SQL against the relational store.
type QueryExecutor interface {
	Query(ctx context.Context, query string) ([]storage.Row, error)
}

// SessionStore persists one State per session between turns.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*State, error)
	Save(ctx context.Context, sessionID string, s *State) error
}

// Deps are the collaborators an Engine is built from.
type Deps struct {
	// Chat handles routing, extraction, correction and summaries.
	Chat llm.Completer
	// SQL generates queries. Defaults to Chat.
	SQL llm.Completer

	Executor QueryExecutor
	Resolver *resolver.Resolver
	Sessions SessionStore
	Prompts  *prompts.Builder
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	// CallTimeout bounds every completion and database call.
	CallTimeout time.Duration
	// MinNameScore is the fuzzy score below which a name is left unresolved.
	MinNameScore int
	Now          func() time.Time
}

type Engine struct {
	chat         llm.Completer
	sql          llm.Completer
	executor     QueryExecutor
	resolver     *resolver.Resolver
	sessions     SessionStore
	prompts      *prompts.Builder
	metrics      *metrics.Metrics
	logger       *slog.Logger
	callTimeout  time.Duration
	minNameScore int
	now          func() time.Time
	locks        *sessionLocks
}

func New(d Deps) (*Engine, error) {
	if d.Chat == nil {
		return nil, fmt.Errorf("chat completer is required")
	}
	if d.Executor == nil {
		return nil, fmt.Errorf("query executor is required")
	}
	if d.Resolver == nil {
		return nil, fmt.Errorf("name resolver is required")
	}
	if d.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if d.Prompts == nil {
		return nil, fmt.Errorf("prompt builder is required")
	}
	if d.SQL == nil {
		d.SQL = d.Chat
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New(nil)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.CallTimeout <= 0 {
		d.CallTimeout = 60 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Engine{
		chat:         d.Chat,
		sql:          d.SQL,
		executor:     d.Executor,
		resolver:     d.Resolver,
		sessions:     d.Sessions,
		prompts:      d.Prompts,
		metrics:      d.Metrics,
		logger:       d.Logger,
		callTimeout:  d.CallTimeout,
		minNameScore: d.MinNameScore,
		now:          d.Now,
		locks:        newSessionLocks(),
	}, nil
}

// TurnResult is what a finished turn hands back to the caller.
type TurnResult struct {
	SessionID  string
	Summary    string
	SQLQuery   string
	Path       PathDecision
	RetryCount int
}

// RunTurn answers question within sessionID. It loads (or creates) the
// session's state, runs the graph to a terminal node and persists the
// result. Exactly one of the result and the error is non-nil.
func (e *Engine) RunTurn(ctx context.Context, question, sessionID string) (*TurnResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	unlock, err := e.locks.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	log := e.logger.With("session", sessionID)
	ctx = logging.WithLogger(ctx, log)

	st, err := e.sessions.Load(ctx, sessionID)
	if errors.Is(err, ErrNoState) {
		st = NewState(question)
	} else if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	st.beginTurn(question, e.now())

	runErr := e.Run(ctx, st)
	if runErr != nil && !errors.Is(runErr, ErrRetryExhausted) {
		e.metrics.TurnsTotal.WithLabelValues(pathLabel(st.PathDecision), "error").Inc()
		log.Error("turn failed", "error", runErr)
		return nil, runErr
	}

	st.UpdatedAt = e.now()
	if err := e.sessions.Save(ctx, sessionID, st); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	if runErr != nil {
		e.metrics.TurnsTotal.WithLabelValues(pathLabel(st.PathDecision), "retry_exhausted").Inc()
		log.Warn("turn halted without summary", "error", runErr, "retries", st.RetryCount, "sql_error", st.SQLError)
		return nil, runErr
	}

	e.metrics.TurnsTotal.WithLabelValues(pathLabel(st.PathDecision), "success").Inc()
	log.Info("turn complete", "path", st.PathDecision, "retries", st.RetryCount)
	return &TurnResult{
		SessionID:  sessionID,
		Summary:    st.Summary,
		SQLQuery:   st.SQLQuery,
		Path:       st.PathDecision,
		RetryCount: st.RetryCount,
	}, nil
}

// Run drives st through the graph from the router to a terminal node.
// It returns nil when a summary was produced, ErrRetryExhausted when the
// correction loop gave up, and a *NodeError when a node failed.
func (e *Engine) Run(ctx context.Context, st *State) error {
	log := logging.Ctx(ctx)
	node := NodeRouter
	for i := 0; i < maxSteps; i++ {
		log.Debug("executing node", "node", node)
		start := time.Now()
		step := e.step(ctx, node, st)
		e.metrics.NodeDuration.WithLabelValues(node.String()).Observe(time.Since(start).Seconds())

		switch step.kind {
		case stepContinue:
			log.Debug("transitioning", "from", node, "to", step.next)
			node = step.next
		case stepHalt:
			return step.reason
		case stepError:
			return &NodeError{Node: node, Err: step.err}
		}
	}
	return fmt.Errorf("workflow did not terminate within %d steps", maxSteps)
}

func (e *Engine) step(ctx context.Context, node Node, st *State) Step {
	switch node {
	case NodeRouter:
		return e.route(ctx, st)
	case NodeExtract:
		return e.extractName(ctx, st)
	case NodeGenerate:
		return e.generateSQL(ctx, st)
	case NodeResolve:
		return e.checkNameExists(ctx, st)
	case NodeFuzzyMatch:
		return e.checkNameSimilarity(ctx, st)
	case NodeAdjust:
		return e.adjustSQLName(ctx, st)
	case NodeExecute:
		return e.executeQuery(ctx, st)
	case NodeCorrect:
		return e.fixQueryError(ctx, st)
	case NodeSummarizeFresh:
		return e.summarize(ctx, st, e.prompts.Summarize)
	case NodeSummarizeFollowUp:
		return e.summarize(ctx, st, e.prompts.SummarizeFollowUp)
	}
	return Fail(fmt.Errorf("unknown node %d", node))
}

// complete runs one completion under the per-call deadline.
func (e *Engine) complete(ctx context.Context, c llm.Completer, prompt string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	out, err := c.Complete(cctx, prompt)
	if err != nil {
		return "", asTimeout(err)
	}
	return out, nil
}

func asTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrCallTimeout, err)
	}
	return err
}

func pathLabel(p PathDecision) string {
	switch p {
	case PathAPI:
		return "api"
	case PathFollowUp:
		return "follow_up"
	}
	return "none"
}
