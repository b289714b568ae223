package alm

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/biz"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/handler"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/router"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/store"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/internal/alm/tools"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/component/loki"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/component/milvus"
	redisclient "github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/component/redis"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/llm"
	_ "github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/llm/ollama"
	_ "github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/llm/openai"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/observability/tracing"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/pool"
	"github.com/RHEcosystemAppEng/ansible-log-analysis/pkg/server"
)

// Server 聚合分诊服务的所有运行期组件。
type Server struct {
	httpServer *server.Server
	watchStop  context.CancelFunc
	closers    []func()
}

// NewServer wires up the full triage service from options.
func NewServer(ctx context.Context, opts *Options) (*Server, error) {
	s := &Server{}

	// 1. 链路追踪
	tp, err := tracing.NewProvider(ctx, opts.Tracing)
	if err != nil {
		return nil, fmt.Errorf("initialize tracing: %w", err)
	}
	s.closers = append(s.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	})

	// 2. Milvus 客户端与知识库
	milvusClient, err := milvus.New(opts.Milvus)
	if err != nil {
		return nil, fmt.Errorf("initialize milvus: %w", err)
	}
	s.closers = append(s.closers, func() { _ = milvusClient.Close(context.Background()) })
	logger.Info("Milvus client initialized")

	// 3. Redis（可选，缓存关闭时不连接）
	var redisConn *goredis.Client
	var planCache *biz.PlanCache
	if opts.Cache.Enabled {
		rc, err := redisclient.New(ctx, opts.Cache.Redis)
		if err != nil {
			logger.Warnw("redis unavailable, caches disabled", "error", err.Error())
		} else {
			redisConn = rc.Client()
			s.closers = append(s.closers, func() { _ = rc.Close() })
			logger.Infow("Redis cache initialized", "addr", opts.Cache.Redis.Addr(), "ttl", opts.Cache.TTL)
		}
	} else {
		logger.Info("plan cache is disabled")
	}

	// 4. LLM 供应商
	embedProvider, err := llm.NewEmbeddingProvider(opts.Embedding.Provider, opts.Embedding.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("initialize embedding provider: %w", err)
	}
	if redisConn != nil {
		embedProvider = llm.NewCachedEmbeddingProvider(embedProvider, redisConn, nil)
	}
	logger.Infow("Embedding provider initialized",
		"provider", opts.Embedding.Provider, "model", opts.Embedding.Model)

	chatProvider, err := llm.NewChatProvider(opts.Chat.Provider, opts.Chat.ToConfigMap())
	if err != nil {
		return nil, fmt.Errorf("initialize chat provider: %w", err)
	}
	logger.Infow("Chat provider initialized",
		"provider", opts.Chat.Provider, "model", opts.Chat.Model)

	// 5. Store 层
	knowledgeStore := store.NewMilvusStore(milvusClient, embedProvider,
		opts.Triage.KnowledgeCollection, opts.Triage.SourceCollection, opts.Triage.EmbeddingDim)
	if err := knowledgeStore.EnsureCollections(ctx); err != nil {
		return nil, fmt.Errorf("ensure milvus collections: %w", err)
	}
	logger.Info("Vector store initialized")

	// 6. Loki 客户端与检索工具
	lokiClient, err := loki.New(opts.Loki)
	if err != nil {
		return nil, fmt.Errorf("initialize loki client: %w", err)
	}
	registry := tools.NewRegistry(
		tools.NewLogsBySourceTool(lokiClient),
		tools.NewSearchLogsByTextTool(lokiClient),
		tools.NewLinesAroundAnchorTool(lokiClient),
	)
	logger.Infow("Retrieval tools registered", "tools", registry.Names())

	// 7. 聚类引擎与模型注册表
	clusterer := biz.NewClusterer(&biz.ClustererConfig{
		MergeThreshold:   opts.Triage.MergeThreshold,
		NoveltyThreshold: opts.Triage.NoveltyThreshold,
		MinClusterSize:   opts.Triage.MinClusterSize,
		Seed:             42,
	})
	modelRegistry := biz.NewModelRegistry(opts.Triage.SnapshotPath)
	if err := modelRegistry.Load(); err != nil {
		logger.Warnw("no cluster model snapshot loaded, will fit from scratch", "error", err.Error())
	}
	if opts.Triage.WatchSnapshot {
		watchCtx, cancel := context.WithCancel(context.Background())
		s.watchStop = cancel
		go func() {
			if err := modelRegistry.Watch(watchCtx); err != nil {
				logger.Warnw("snapshot watcher stopped", "error", err.Error())
			}
		}()
	}

	// 8. 路由器与分诊服务
	routerCfg := biz.NewRouterConfig()
	routerCfg.MaxRounds = opts.Triage.MaxRounds
	routerCfg.RoundTimeout = opts.Triage.RoundTimeout
	routerCfg.Prefetch = opts.Triage.Prefetch

	classifier := biz.NewSufficiencyClassifier(chatProvider)
	selector := biz.NewToolSelector(registry)
	generator := biz.NewRemediationGenerator(chatProvider)
	ctxRouter := biz.NewRouter(classifier, selector, generator, knowledgeStore, routerCfg)

	if redisConn != nil {
		planCache = biz.NewPlanCache(redisConn, opts.Cache.TTL)
	}

	workers, err := pool.New("triage", &pool.Config{
		Capacity:       opts.Triage.WorkerCapacity,
		ExpiryDuration: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("initialize worker pool: %w", err)
	}
	s.closers = append(s.closers, func() { _ = workers.Release(5 * time.Second) })

	summarizer := biz.NewSummarizer(chatProvider)
	service := biz.NewTriageService(summarizer, embedProvider, clusterer, modelRegistry, ctxRouter, planCache, workers)
	logger.Info("Triage service initialized")

	// 9. HTTP 服务器与路由
	s.httpServer = server.New(opts.HTTP)
	triageHandler := handler.NewTriageHandler(service, modelRegistry, knowledgeStore, workers)
	router.Register(s.httpServer.Engine(), triageHandler)

	logger.Info("Triage service is ready")
	return s, nil
}

// Run starts the HTTP server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	defer func() {
		if s.watchStop != nil {
			s.watchStop()
		}
		for i := len(s.closers) - 1; i >= 0; i-- {
			s.closers[i]()
		}
	}()
	return s.httpServer.Run(ctx)
}
