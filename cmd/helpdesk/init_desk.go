package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"helpdesk-ai/internal/adapter/embedding"
	"helpdesk-ai/internal/adapter/itops"
	"helpdesk-ai/internal/adapter/knowledge"
	"helpdesk-ai/internal/adapter/llm"
	"helpdesk-ai/internal/adapter/ticket"
	"helpdesk-ai/internal/domain"
	"helpdesk-ai/internal/infra/config"
	"helpdesk-ai/internal/infra/logger"
	"helpdesk-ai/internal/infra/tracer"
	"helpdesk-ai/internal/security"
	"helpdesk-ai/internal/usecase"
	"helpdesk-ai/internal/usecase/classifier"
	"helpdesk-ai/internal/usecase/escalation"
	"helpdesk-ai/internal/usecase/eventbus"
	kb "helpdesk-ai/internal/usecase/knowledge"
	"helpdesk-ai/internal/usecase/loganalysis"
	"helpdesk-ai/internal/usecase/workflow"
)

// app holds everything a command needs. Close releases it in reverse
// construction order.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	provider domain.LLMProvider
	dir      *itops.Directory
	ops      *itops.Mock
	jira     *ticket.JiraClient
	bus      *eventbus.Bus
	audit    *security.FileAuditLogger // nil when audit is disabled
	desk     *usecase.Desk

	cleanups []func()
}

func (a *app) onClose(fn func()) { a.cleanups = append(a.cleanups, fn) }

// Close runs cleanups LIFO.
func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

// loadRuntime reads config and sets up logging and tracing.
func loadRuntime(ctx context.Context, f flags, adjust func(*config.Config)) (*config.Config, *slog.Logger, func(), error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	if adjust != nil {
		adjust(cfg)
	}

	log, closeLog, err := logger.New(cfg.Logger,
		logger.WithService("helpdesk"),
		logger.WithRedactor(security.RedactPII),
	)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		closeLog()
		return nil, nil, nil, fmt.Errorf("init tracer: %w", err)
	}

	cleanup := func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
		closeLog()
	}
	return cfg, log, cleanup, nil
}

// buildApp wires the desk and its backends from cfg.
func buildApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	reg, err := llm.BuildRegistry(cfg.LLM, log)
	if err != nil {
		return nil, fmt.Errorf("llm providers: %w", err)
	}
	a.provider = reg.Default(cfg.LLM.DefaultProvider)
	if a.provider == nil {
		log.Info("no llm provider configured, using rule-based capabilities")
	}

	a.dir = itops.NewDirectory()
	a.ops = itops.NewMock(a.dir, log)
	contexts := itops.NewContextProvider(a.dir, log)

	a.jira = ticket.NewJiraClient(cfg.Jira, log)
	_ = a.jira.Connect(ctx) // failure already switched to demo mode

	store, closeStore, err := openKnowledgeStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.onClose(closeStore)

	handlers := map[domain.Intent]usecase.Handler{
		domain.IntentKnowledge:   buildKnowledge(cfg, store, a.provider, log),
		domain.IntentEscalation: escalation.New(a.jira, contexts, escalation.Config{
			Project:      cfg.Escalation.Project,
			SlackChannel: cfg.Escalation.SlackChannel,
			Timeout:      cfg.Escalation.Timeout,
		}, log),
		domain.IntentLogAnalyzer: loganalysis.New(itops.NewLogStore(log), a.provider, a.jira, loganalysis.Config{
			Project: cfg.Escalation.Project,
			Timeout: cfg.Escalation.Timeout,
		}, log),
	}
	wf := buildWorkflow(cfg, a.ops, a.provider, log)
	handlers[domain.IntentWorkflow] = wf

	var routerOpts []usecase.RouterOption
	if cfg.Classifier.Summarize && a.provider != nil {
		routerOpts = append(routerOpts, usecase.WithSummarizer(classifier.NewSummarizer(a.provider, log,
			classifier.WithWindow(cfg.Classifier.SummaryWindow),
			classifier.WithTokenBudget(cfg.Classifier.SummaryTokenBudget),
			classifier.WithSummaryTimeout(cfg.Classifier.Timeout),
		)))
	}
	router := usecase.NewRouter(buildClassifier(cfg, a.provider, log), contexts, handlers, log, routerOpts...)

	sessions, err := openSessions(cfg.Session)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.bus = eventbus.New(log)
	a.onClose(a.bus.Close)
	unsub := a.bus.SubscribeAll(buildNotifier(cfg, log).HandleEvent)
	a.onClose(unsub)

	deskOpts := []usecase.DeskOption{
		usecase.WithEventBus(a.bus),
		usecase.WithApprovalRunner(wf),
		usecase.WithApprovers(cfg.Approval.Approvers),
		usecase.WithMetrics(usecase.NewMetrics()),
	}
	if cfg.Audit.Enabled {
		audit, err := openAudit(cfg.Audit)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.audit = audit
		a.onClose(func() { _ = audit.Close() })
		deskOpts = append(deskOpts, usecase.WithAuditor(audit))
	}
	a.desk = usecase.NewDesk(router, sessions, log, deskOpts...)

	log.Info("desk ready",
		"provider", providerName(a.provider),
		"knowledge", cfg.Knowledge.Backend,
		"jira", a.jira.Mode(),
		"audit", cfg.Audit.Enabled,
	)
	return a, nil
}

func providerName(p domain.LLMProvider) string {
	if p == nil {
		return "none"
	}
	return p.Name()
}

func buildClassifier(cfg *config.Config, provider domain.LLMProvider, log *slog.Logger) domain.Classifier {
	var primary domain.Classifier
	if cfg.Classifier.Mode == "llm" && provider != nil {
		primary = classifier.NewLLM(provider, log)
	}
	return classifier.NewFallback(primary, cfg.Classifier.Timeout, log)
}

func buildKnowledge(cfg *config.Config, store domain.KnowledgeStore, provider domain.LLMProvider, log *slog.Logger) *kb.Handler {
	var verifier kb.Verifier
	if cfg.Knowledge.Verify {
		if provider != nil {
			verifier = kb.NewLLMVerifier(provider)
		} else {
			verifier = kb.OverlapVerifier{}
		}
	}
	return kb.New(store, provider, verifier, kb.Config{
		TopK: cfg.Knowledge.TopK,
		Weights: kb.Weights{
			Retrieval:    cfg.Knowledge.RetrievalWeight,
			Verification: cfg.Knowledge.VerificationWeight,
		},
		Bands:   kb.Bands{High: cfg.Confidence.High, Medium: cfg.Confidence.Medium},
		Timeout: cfg.Knowledge.Timeout,
	}, log)
}

func buildWorkflow(cfg *config.Config, ops domain.ITOps, provider domain.LLMProvider, log *slog.Logger) *workflow.Handler {
	var selector workflow.ToolSelector = workflow.KeywordSelector{}
	if cfg.Workflow.Selector == "llm" && provider != nil {
		selector = workflow.NewFallbackSelector(workflow.NewLLMSelector(provider), cfg.Workflow.Timeout, log)
	}
	policy := workflow.NewApprovalPolicy(cfg.Approval.AlwaysApprove, cfg.Approval.AlwaysDeny)
	return workflow.New(ops, selector, policy, log, workflow.WithTimeout(cfg.Workflow.Timeout))
}

// openKnowledgeStore returns the configured retrieval backend. An empty
// SQLite index is seeded from the built-in corpus.
func openKnowledgeStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (domain.KnowledgeStore, func(), error) {
	if cfg.Knowledge.Backend != "sqlite" {
		return knowledge.NewKeywordStore(), func() {}, nil
	}
	store, err := openSQLite(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	n, err := store.Count(ctx)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("knowledge index: %w", err)
	}
	if n == 0 {
		if err := seedStore(ctx, store); err != nil {
			store.Close()
			return nil, nil, err
		}
		log.Info("knowledge index seeded", "path", cfg.Knowledge.DBPath)
	}
	return store, func() { _ = store.Close() }, nil
}

func openSQLite(cfg *config.Config, log *slog.Logger) (*knowledge.SQLiteStore, error) {
	embedder, err := embedding.New(cfg.Knowledge.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Knowledge.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("knowledge dir: %w", err)
	}
	store, err := knowledge.NewSQLiteStore(cfg.Knowledge.DBPath, embedder, log,
		knowledge.WithMinSimilarity(cfg.Knowledge.MinSimilarity))
	if err != nil {
		return nil, fmt.Errorf("open knowledge index: %w", err)
	}
	return store, nil
}

func seedStore(ctx context.Context, store *knowledge.SQLiteStore) error {
	docs := append(knowledge.CorpusDocuments(), knowledge.CatalogDocuments()...)
	if err := store.Index(ctx, docs); err != nil {
		return fmt.Errorf("seed knowledge index: %w", err)
	}
	return nil
}
