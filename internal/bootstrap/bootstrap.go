package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/secguide/internal/config"
	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/ports"
	"github.com/kirillkom/secguide/internal/core/retrieval"
	"github.com/kirillkom/secguide/internal/core/usecase"
	"github.com/kirillkom/secguide/internal/infrastructure/chunking"
	"github.com/kirillkom/secguide/internal/infrastructure/embedcache"
	"github.com/kirillkom/secguide/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/secguide/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/secguide/internal/infrastructure/extractor/router"
	"github.com/kirillkom/secguide/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/secguide/internal/infrastructure/queue/nats"
	"github.com/kirillkom/secguide/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/secguide/internal/infrastructure/rerank/cohere"
	"github.com/kirillkom/secguide/internal/infrastructure/resilience"
	"github.com/kirillkom/secguide/internal/infrastructure/standards"
	"github.com/kirillkom/secguide/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/secguide/internal/infrastructure/vector/memory"
	"github.com/kirillkom/secguide/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/secguide/internal/infrastructure/websearch/tavily"
	"github.com/kirillkom/secguide/internal/observability/metrics"
)

type Options struct {
	Service    string
	Logger     *slog.Logger
	Registerer prometheus.Registerer
	// InlineIngest processes ingest requests in the calling process instead
	// of publishing them to NATS.
	InlineIngest bool
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue   ports.MessageQueue
	Repo    ports.DocumentRepository
	Storage ports.ObjectStorage

	Orchestrator *retrieval.Orchestrator
	Lexical      *retrieval.LexicalRanker
	Metrics      *metrics.RetrievalMetrics

	RefreshUC  *usecase.CorpusRefreshUseCase
	GuidanceUC *usecase.GuidanceUseCase
	IngestUC   *usecase.IngestCorpusUseCase
	ProcessUC  *usecase.ProcessDocumentUseCase
	CompareUC  *usecase.CompareModesUseCase
	ControlsUC *usecase.ControlGuideUseCase

	closers []func()
}

// Retrieval is the part of the application that answers queries. It needs
// the embedding model and the passage store but no database or broker.
type Retrieval struct {
	Orchestrator *retrieval.Orchestrator
	Lexical      *retrieval.LexicalRanker
	Store        ports.PassageStore
	Index        ports.PassageIndex
	Embedder     ports.Embedder
	Generator    ports.AnswerGenerator
	Executor     *resilience.Executor
	Metrics      *metrics.RetrievalMetrics

	cfg     config.Config
	logger  *slog.Logger
	closeFn func()
}

type passageStore interface {
	ports.PassageStore
	ports.PassageIndex
}

func NewRetrieval(cfg config.Config, opts Options) (*Retrieval, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	observer := metrics.NewRetrievalMetrics(registerer, opts.Service)
	executor := resilience.NewExecutor(
		resilience.DefaultConfig(),
		resilience.WithLogger(logger),
		resilience.WithStateListener(observer.ObserveBreakerState),
		resilience.WithOperationConfig("cohere.rerank", resilience.DefaultConfig().SingleAttempt()),
	)

	ollamaClient := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, ollama.WithExecutor(executor))
	ollamaEmbedder := ollama.NewEmbedder(ollamaClient)
	var embedder ports.Embedder = ollamaEmbedder
	closeFn := func() {}
	if strings.TrimSpace(cfg.EmbeddingCache) != "" {
		cached, err := embedcache.Open(cfg.EmbeddingCache, ollamaEmbedder, ollamaEmbedder.Model(), logger)
		if err != nil {
			return nil, fmt.Errorf("open embedding cache: %w", err)
		}
		embedder = cached
		closeFn = func() { _ = cached.Close() }
	}

	var store passageStore
	switch strings.ToLower(cfg.VectorStoreMode) {
	case "memory":
		store = memory.New()
	case "", "qdrant":
		store = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, qdrant.WithExecutor(executor))
	default:
		closeFn()
		return nil, domain.WrapError(domain.ErrInvalidConfig, "new retrieval", fmt.Errorf("unknown vector store mode %q", cfg.VectorStoreMode))
	}

	retrievalOpts := cfg.RetrievalOptions()
	if cfg.RetrievalTuningFile != "" {
		tuned, err := config.ApplyTuningFile(cfg.RetrievalTuningFile, retrievalOpts)
		if err != nil {
			closeFn()
			return nil, err
		}
		retrievalOpts = tuned
	}
	// validated as configured, before any renormalisation can hide a bad sum
	if err := retrievalOpts.Validate(); err != nil {
		closeFn()
		return nil, err
	}

	var reranker retrieval.Reranker
	if strings.TrimSpace(cfg.CohereAPIKey) != "" {
		scorer := cohere.New(cfg.CohereAPIKey,
			cohere.WithModel(cfg.CohereModel),
			cohere.WithRateLimit(cfg.CohereRPS, 1),
			cohere.WithExecutor(executor),
		)
		reranker = retrieval.NewCrossEncoderReranker(scorer, retrievalOpts.CrossEncoderMaxCandidates)
	} else {
		logger.Info("cross_encoder_disabled", "reason", "no cohere api key")
		retrievalOpts = retrievalOpts.WithoutCrossEncoder()
	}

	mode := domain.ModeHybrid
	if cfg.RetrievalDefaultMode != "" {
		parsed, ok := domain.ParseRetrievalMode(cfg.RetrievalDefaultMode)
		if !ok {
			closeFn()
			return nil, domain.WrapError(domain.ErrInvalidConfig, "new retrieval", fmt.Errorf("unknown retrieval mode %q", cfg.RetrievalDefaultMode))
		}
		mode = parsed
	}

	lexical := retrieval.NewLexicalRanker(retrieval.NewAnalyzer(), logger)
	orchestrator, err := retrieval.NewOrchestrator(
		retrieval.NewDenseRanker(embedder, store),
		lexical,
		reranker,
		retrievalOpts,
		retrieval.WithLogger(logger),
		retrieval.WithObserver(observer),
		retrieval.WithDefaultMode(mode),
	)
	if err != nil {
		closeFn()
		return nil, fmt.Errorf("init orchestrator: %w", err)
	}

	return &Retrieval{
		Orchestrator: orchestrator,
		Lexical:      lexical,
		Store:        store,
		Index:        store,
		Embedder:     embedder,
		Generator:    ollama.NewGenerator(ollamaClient),
		Executor:     executor,
		Metrics:      observer,
		cfg:          cfg,
		logger:       logger,
		closeFn:      closeFn,
	}, nil
}

func (r *Retrieval) NewRefreshUseCase() *usecase.CorpusRefreshUseCase {
	return usecase.NewCorpusRefreshUseCase(r.Lexical, r.Store, r.Metrics, r.logger)
}

// NewGuidanceUseCase enables web supplementation only when a Tavily key is
// configured.
func (r *Retrieval) NewGuidanceUseCase() *usecase.GuidanceUseCase {
	var web ports.WebSearcher
	if strings.TrimSpace(r.cfg.TavilyAPIKey) != "" {
		web = tavily.New(r.cfg.TavilyAPIKey, tavily.WithExecutor(r.Executor))
	}
	policy := usecase.ThresholdPolicy{
		MinPassages: r.cfg.SupplementalMinPassages,
		MinTopScore: r.cfg.SupplementalMinScore,
	}
	return usecase.NewGuidanceUseCase(r.Orchestrator, r.Generator, web, policy, r.cfg.TavilyResults, r.logger)
}

// NewControlGuideUseCase loads the standards catalog (built-in unless
// CONTROLS_CATALOG_FILE is set) and answers through guidance.
func (r *Retrieval) NewControlGuideUseCase(guidance ports.GuidanceService) (*usecase.ControlGuideUseCase, error) {
	catalog, err := standards.Load(r.cfg.ControlsCatalogFile)
	if err != nil {
		return nil, err
	}
	return usecase.NewControlGuideUseCase(catalog, guidance, r.logger), nil
}

func (r *Retrieval) Close() {
	if r.closeFn != nil {
		r.closeFn()
	}
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts.Logger = logger

	app := &App{Config: cfg, Logger: logger}
	fail := func(err error) (*App, error) {
		app.Close()
		return nil, err
	}

	core, err := NewRetrieval(cfg, opts)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, core.Close)
	app.Orchestrator = core.Orchestrator
	app.Lexical = core.Lexical
	app.Metrics = core.Metrics

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return fail(fmt.Errorf("open postgres: %w", err))
	}
	app.closers = append(app.closers, func() { _ = db.Close() })
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return fail(fmt.Errorf("ensure schema: %w", err))
	}
	app.Repo = repo

	storage, err := localfs.New(cfg.DataPath, cfg.DataIncludes, cfg.DataExcludes)
	if err != nil {
		return fail(fmt.Errorf("init corpus storage: %w", err))
	}
	app.Storage = storage

	app.RefreshUC = core.NewRefreshUseCase()

	extractor := router.New(pdf.NewExtractor(storage, logger), plaintext.NewExtractor(storage))
	indexer := usecase.NewIndexDocumentUseCase(
		extractor,
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		core.Embedder,
		core.Index,
		cfg.IndexBatchSize,
	)

	if opts.InlineIngest {
		inline := &inlineQueue{refresh: app.RefreshUC, logger: logger}
		app.ProcessUC = usecase.NewProcessDocumentUseCase(repo, indexer, inline, logger)
		inline.process = app.ProcessUC
		app.Queue = inline
	} else {
		queue, err := nats.New(cfg.NATSURL, nats.Options{
			IngestSubject:      cfg.NATSIngestSubject,
			CorpusSubject:      cfg.NATSCorpusSubject,
			ResilienceExecutor: core.Executor,
			Logger:             logger,
		})
		if err != nil {
			return fail(fmt.Errorf("init message queue: %w", err))
		}
		app.closers = append(app.closers, queue.Close)
		app.Queue = queue
		app.ProcessUC = usecase.NewProcessDocumentUseCase(repo, indexer, queue, logger)
	}
	app.IngestUC = usecase.NewIngestCorpusUseCase(repo, storage, app.Queue)

	app.GuidanceUC = core.NewGuidanceUseCase()
	app.CompareUC = usecase.NewCompareModesUseCase(core.Orchestrator)
	controls, err := core.NewControlGuideUseCase(app.GuidanceUC)
	if err != nil {
		return fail(err)
	}
	app.ControlsUC = controls

	return app, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
