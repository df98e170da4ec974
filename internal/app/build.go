package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ent0n29/roundtable/internal/agent"
	"github.com/ent0n29/roundtable/internal/config"
	"github.com/ent0n29/roundtable/internal/discussion"
	"github.com/ent0n29/roundtable/internal/httpapi"
	"github.com/ent0n29/roundtable/internal/logging"
	"github.com/ent0n29/roundtable/internal/observability"
	"github.com/ent0n29/roundtable/internal/persona"
	"github.com/ent0n29/roundtable/internal/scrape"
	"github.com/ent0n29/roundtable/internal/sentiment"
	"github.com/ent0n29/roundtable/internal/session"
	"github.com/ent0n29/roundtable/internal/transcript"
	"github.com/ent0n29/roundtable/internal/webcontext"
)

type BuildResult struct {
	Config       config.Config
	API          *httpapi.Server
	Sessions     *session.Manager
	Transcripts  transcript.Store
	Orchestrator *discussion.Orchestrator
	Registry     *persona.Registry
	Metrics      *observability.Metrics

	// Cleanup should be called on shutdown to release the transcript store.
	Cleanup func() error
}

func Build(_ context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	logger := logging.New("app")

	runtime, err := agent.NewRuntime(agent.Config{
		Mode:            cfg.AgentMode,
		Model:           cfg.AgentModel,
		APIKey:          cfg.OpenAIAPIKey,
		BaseURL:         cfg.OpenAIBaseURL,
		HTTPURL:         cfg.AgentHTTPURL,
		Timeout:         cfg.AgentTimeout,
		MaxOutputTokens: cfg.AgentMaxOutputTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("agent runtime init failed: %w", err)
	}
	runtime = agent.Instrument(runtime, func(rt agent.ResultType, d time.Duration, err error) {
		metrics.ObserveAgentCall(string(rt), d, err)
	})

	scraper, err := scrape.NewScraper(scrape.Config{
		Mode:       cfg.ScrapeMode,
		APIKey:     cfg.FirecrawlAPIKey,
		BaseURL:    cfg.FirecrawlBaseURL,
		ChromePath: cfg.ChromePath,
		Timeout:    cfg.ScrapeTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("scraper init failed: %w", err)
	}
	fetcher := webcontext.New(scraper,
		webcontext.WithMaxChars(cfg.ContextMaxChars),
		webcontext.WithLogger(logging.New("webcontext")),
		webcontext.WithFailureHook(func(error) {
			metrics.EnrichmentFailure()
			metrics.ProviderError("scrape", "fetch")
		}),
	)

	transcripts := transcript.NewInMemoryStore()
	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		transcripts.Drop(s.ID)
		metrics.SessionEvent("expired")
		metrics.SetActiveSessions(sessions.ActiveCount())
	})

	registry := persona.Default()
	hub := httpapi.NewHub(metrics)
	orchestrator := discussion.New(discussion.Deps{
		Sessions:    sessions,
		Transcripts: transcripts,
		Registry:    registry,
		Runtime:     runtime,
		Scorer:      sentiment.NewScorer(runtime, cfg.SentimentModel),
		Fetcher:     fetcher,
		Publisher:   hub,
		Metrics:     metrics,
		MemoryTurns: cfg.MemoryTurns,
		Logger:      logging.New("discussion"),
	})

	api := httpapi.New(cfg, sessions, orchestrator, hub, metrics)
	logger.Info("discussion service built",
		"agent_mode", cfg.AgentMode,
		"agent_model", cfg.AgentModel,
		"scrape_mode", cfg.ScrapeMode,
		"memory_turns", cfg.MemoryTurns,
	)

	return &BuildResult{
		Config:       cfg,
		API:          api,
		Sessions:     sessions,
		Transcripts:  transcripts,
		Orchestrator: orchestrator,
		Registry:     registry,
		Metrics:      metrics,
		Cleanup:      transcripts.Close,
	}, nil
}
