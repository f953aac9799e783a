package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Divas-Gupta30/esports-agent/internal/config"
	"github.com/Divas-Gupta30/esports-agent/internal/graph"
	"github.com/Divas-Gupta30/esports-agent/internal/llm"
	"github.com/Divas-Gupta30/esports-agent/internal/logging"
	"github.com/Divas-Gupta30/esports-agent/internal/metrics"
	"github.com/Divas-Gupta30/esports-agent/internal/prompts"
	"github.com/Divas-Gupta30/esports-agent/internal/resolver"
	"github.com/Divas-Gupta30/esports-agent/internal/session"
	"github.com/Divas-Gupta30/esports-agent/internal/storage"
)

// app holds the wired collaborators for one command invocation.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *storage.Store
	sessions session.Store
	engine   *graph.Engine
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// newBaseApp loads configuration and opens the relational store. Commands
// that never call a model stop here.
func newBaseApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	log := logging.New(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)

	store, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Debug("connected to database", "driver", cfg.DatabaseDriver)
	return &app{cfg: cfg, log: log, store: store}, nil
}

// newApp additionally builds the completion providers, the session store
// and the workflow engine.
func newApp(ctx context.Context) (*app, error) {
	a, err := newBaseApp(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.wireEngine(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wireEngine(ctx context.Context) error {
	cfg := a.cfg

	chat, err := llm.New(llm.ProviderConfig{
		Provider:  cfg.LLMProvider,
		Model:     cfg.LLMModel,
		OllamaURL: cfg.OllamaURL,
		OpenAIKey: cfg.OpenAIKey,
		GeminiKey: cfg.GeminiKey,
	})
	if err != nil {
		return fmt.Errorf("chat model: %w", err)
	}
	sqlModel, err := llm.New(llm.ProviderConfig{
		Provider:  cfg.SQLProvider,
		Model:     cfg.SQLModel,
		OllamaURL: cfg.OllamaURL,
		OpenAIKey: cfg.OpenAIKey,
		GeminiKey: cfg.GeminiKey,
	})
	if err != nil {
		return fmt.Errorf("sql model: %w", err)
	}

	hints, err := prompts.LoadHints(cfg.PromptHintsFile)
	if err != nil {
		return fmt.Errorf("prompt hints: %w", err)
	}
	schema, err := a.store.DescribeSchema(ctx)
	if err != nil {
		return fmt.Errorf("describing schema: %w", err)
	}

	a.sessions, err = session.Open(ctx, session.Options{
		Backend:       cfg.SessionBackend,
		TTL:           cfg.SessionTTL,
		RedisAddr:     cfg.RedisURL,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		Path:          cfg.SessionPath,
		DatabaseURL:   cfg.SessionDatabaseURL,
	})
	if err != nil {
		return fmt.Errorf("session store: %w", err)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)

	a.engine, err = graph.New(graph.Deps{
		Chat:         chat,
		SQL:          sqlModel,
		Executor:     a.store,
		Resolver:     resolver.New(a.store, nil),
		Sessions:     a.sessions,
		Prompts:      &prompts.Builder{Schema: schema, Dialect: cfg.DatabaseDriver, Hints: hints},
		Metrics:      a.metrics,
		Logger:       a.log,
		CallTimeout:  cfg.CallTimeout,
		MinNameScore: cfg.NameMatchMinScore,
	})
	if err != nil {
		return err
	}
	a.log.Info("agent ready",
		"llm", cfg.LLMProvider, "model", cfg.LLMModel,
		"sql_llm", cfg.SQLProvider, "sql_model", cfg.SQLModel,
		"sessions", cfg.SessionBackend)
	return nil
}

func (a *app) Close() {
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			a.log.Warn("closing session store", "error", err)
		}
	}
	if a.store != nil {
		a.store.Close()
	}
}
