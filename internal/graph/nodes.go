package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Divas-Gupta30/esports-agent/internal/llm"
	"github.com/Divas-Gupta30/esports-agent/internal/logging"
	"github.com/Divas-Gupta30/esports-agent/internal/resolver"
	"github.com/Divas-Gupta30/esports-agent/internal/storage"
)

func (e *Engine) route(ctx context.Context, st *State) Step {
	out, err := e.complete(ctx, e.chat, e.prompts.Route(st.OriginalQuery, st.SQLQueryResults))
	if err != nil {
		if errors.Is(err, llm.ErrEmptyCompletion) {
			return Fail(fmt.Errorf("%w: %w", ErrRouterFailure, err))
		}
		return Fail(err)
	}
	label, ok := llm.ParseLabel(out)
	if !ok {
		return Fail(fmt.Errorf("%w: %q", ErrRouterFailure, out))
	}

	log := logging.Ctx(ctx)
	if label == llm.LabelFollowUp && st.SQLQueryResults == nil {
		log.Info("follow up without prior results, doing a fresh lookup")
		label = llm.LabelAPI
	}
	if label == llm.LabelFollowUp {
		st.PathDecision = PathFollowUp
		return Continue(NodeSummarizeFollowUp)
	}
	st.PathDecision = PathAPI
	st.beginLookup()
	return Continue(NodeExtract)
}

func (e *Engine) extractName(ctx context.Context, st *State) Step {
	out, err := e.complete(ctx, e.chat, e.prompts.ExtractName(st.OriginalQuery))
	if err != nil && !errors.Is(err, llm.ErrEmptyCompletion) {
		return Fail(err)
	}
	st.Name = llm.CleanName(out)
	logging.Ctx(ctx).Debug("extracted name", "name", st.Name)
	return Continue(NodeGenerate)
}

func (e *Engine) generateSQL(ctx context.Context, st *State) Step {
	out, err := e.complete(ctx, e.sql, e.prompts.Generate(st.OriginalQuery, st.CurrentDate))
	if err != nil {
		return Fail(err)
	}
	q := llm.CleanQuery(out)
	if q == "" {
		return Fail(fmt.Errorf("generate sql: %w", llm.ErrEmptyCompletion))
	}
	st.SQLQuery = q
	logging.Ctx(ctx).Debug("generated sql", "sql", q)
	return Continue(NodeResolve)
}

func (e *Engine) checkNameExists(ctx context.Context, st *State) Step {
	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	ok, err := e.resolver.Exists(cctx, st.Name)
	if err != nil {
		return Fail(asTimeout(err))
	}
	st.NameExists = boolPtr(ok)
	if ok {
		e.metrics.NameResolutions.WithLabelValues("exact").Inc()
		return Continue(NodeExecute)
	}
	return Continue(NodeFuzzyMatch)
}

func (e *Engine) checkNameSimilarity(ctx context.Context, st *State) Step {
	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	m, err := e.resolver.BestMatch(cctx, st.Name)
	if errors.Is(err, resolver.ErrNoCandidates) {
		logging.Ctx(ctx).Warn("no reference names loaded, running query as generated", "name", st.Name)
		e.metrics.NameResolutions.WithLabelValues("unresolved").Inc()
		return Continue(NodeExecute)
	}
	if err != nil {
		return Fail(asTimeout(err))
	}
	st.BestNameMatch = m.Name
	st.BestNameScore = m.Score
	logging.Ctx(ctx).Debug("best fuzzy match", "name", st.Name, "match", m.Name, "score", m.Score, "set", m.Set)
	return Continue(NodeAdjust)
}

func (e *Engine) adjustSQLName(ctx context.Context, st *State) Step {
	if st.BestNameScore < e.minNameScore {
		logging.Ctx(ctx).Warn("leaving query unadjusted",
			"error", ErrNameUnresolved, "name", st.Name, "match", st.BestNameMatch, "score", st.BestNameScore)
		e.metrics.NameResolutions.WithLabelValues("unresolved").Inc()
		return Continue(NodeExecute)
	}
	st.SQLQuery = resolver.Substitute(st.SQLQuery, st.Name, st.BestNameMatch)
	e.metrics.NameResolutions.WithLabelValues("fuzzy").Inc()
	return Continue(NodeExecute)
}

func (e *Engine) executeQuery(ctx context.Context, st *State) Step {
	cctx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()
	rows, err := e.executor.Query(cctx, st.SQLQuery)
	switch {
	case err == nil:
		st.SQLQueryResults = rows
		st.SQLError = ""
		return Continue(NodeSummarizeFresh)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return Fail(asTimeout(err))
	}
	// Only engine rejections go to the corrector.
	var qerr *storage.QueryError
	if !errors.As(err, &qerr) {
		return Fail(err)
	}

	st.SQLQueryResults = nil
	st.SQLError = err.Error()
	logging.Ctx(ctx).Warn("query failed", "error", err, "retries", st.RetryCount)
	if st.RetryCount < MaxRetries {
		return Continue(NodeCorrect)
	}
	return Halt(ErrRetryExhausted)
}

func (e *Engine) fixQueryError(ctx context.Context, st *State) Step {
	st.RetryCount++
	e.metrics.CorrectionsTotal.Inc()
	out, err := e.complete(ctx, e.chat, e.prompts.Correct(st.SQLQuery, st.SQLError))
	if err != nil && !errors.Is(err, llm.ErrEmptyCompletion) {
		return Fail(err)
	}
	if q := llm.CleanQuery(out); q != "" {
		st.SQLQuery = q
	}
	st.SQLError = ""
	st.SQLQueryResults = nil
	return Continue(NodeExecute)
}

func (e *Engine) summarize(ctx context.Context, st *State, render func(question, date string, results any) string) Step {
	out, err := e.complete(ctx, e.chat, render(st.OriginalQuery, st.CurrentDate, st.SQLQueryResults))
	if err != nil {
		return Fail(err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return Fail(llm.ErrEmptyCompletion)
	}
	st.Summary = out
	return Halt(nil)
}
