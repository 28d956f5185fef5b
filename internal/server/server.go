package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	mid "github.com/kasetlab/agrirag/internal/server/middleware"
	"github.com/kasetlab/agrirag/internal/util"
	"github.com/kasetlab/agrirag/pkg/ai"
	aiollama "github.com/kasetlab/agrirag/pkg/ai/ollama"
	aiopenai "github.com/kasetlab/agrirag/pkg/ai/openai"
	"github.com/kasetlab/agrirag/pkg/logger"
	"github.com/kasetlab/agrirag/pkg/rag"
	storepgx "github.com/kasetlab/agrirag/pkg/store/pgx"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	poolConfig, err := pgxpool.ParseConfig(util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to parse database url", "err", err)
	}
	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}
	conn, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	aiClient, err := newAIClient()
	if err != nil {
		logger.Fatal("Failed to create ai client", "err", err)
	}

	docStore := storepgx.NewAdvisorDBStore(storepgx.NewAdvisorDBStoreParams{
		Conn:     conn,
		AIClient: aiClient,
	})

	pipeline := rag.NewPipeline(rag.NewPipelineParams{
		Store:    docStore,
		AIClient: aiClient,
		Config:   ragConfig(),
	})

	e.Use(mid.AppContextMiddleware(&mid.App{Pipeline: pipeline, DBConn: conn}))
	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnvString("PORT", "8080")
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

// newAIClient selects the provider from AI_PROVIDER (openai or ollama).
func newAIClient() (ai.AdvisorAIClient, error) {
	provider := util.GetEnvString("AI_PROVIDER", "openai")
	switch provider {
	case "openai":
		return aiopenai.NewAdvisorOpenAIClient(aiopenai.NewAdvisorOpenAIClientParams{
			ChatModel:      util.GetEnvString("AI_CHAT_MODEL", "gpt-4o-mini"),
			ClassifyModel:  util.GetEnvString("AI_CLASSIFY_MODEL", ""),
			EmbeddingModel: util.GetEnvString("AI_EMBED_MODEL", "text-embedding-3-small"),
			ChatURL:        util.GetEnv("AI_CHAT_URL"),
			ChatKey:        util.GetEnv("AI_CHAT_KEY"),
			EmbeddingURL:   util.GetEnv("AI_EMBED_URL"),
			EmbeddingKey:   util.GetEnv("AI_EMBED_KEY"),
		}), nil
	case "ollama":
		return aiollama.NewAdvisorOllamaClient(aiollama.NewAdvisorOllamaClientParams{
			ChatModel:             util.GetEnvString("AI_CHAT_MODEL", "qwen2.5:14b"),
			ClassifyModel:         util.GetEnvString("AI_CLASSIFY_MODEL", ""),
			EmbeddingModel:        util.GetEnvString("AI_EMBED_MODEL", "bge-m3"),
			BaseURL:               util.GetEnv("AI_BASE_URL"),
			ApiKey:                util.GetEnv("AI_API_KEY"),
			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_MAX_CONCURRENT", 2)),
		})
	default:
		return nil, fmt.Errorf("unknown ai provider %q", provider)
	}
}

// ragConfig fills the pipeline knobs from the environment on top of the
// calibrated defaults.
func ragConfig() rag.Config {
	cfg := rag.DefaultConfig()
	cfg.TopK = int(util.GetEnvNumeric("RAG_TOP_K", cfg.TopK))
	cfg.SimilarityThreshold = util.GetEnvFloat("RAG_SIMILARITY_THRESHOLD", cfg.SimilarityThreshold)
	cfg.HybridVectorWeight = util.GetEnvFloat("RAG_HYBRID_VECTOR_WEIGHT", cfg.HybridVectorWeight)
	cfg.MinResults = int(util.GetEnvNumeric("RAG_MIN_RESULTS", cfg.MinResults))
	cfg.GroundingEnabled = util.GetEnvBool("RAG_GROUNDING_ENABLED", cfg.GroundingEnabled)
	cfg.LLMTimeout = time.Duration(util.GetEnvNumeric("RAG_LLM_TIMEOUT_SEC", int(cfg.LLMTimeout/time.Second))) * time.Second
	cfg.SearchTimeout = time.Duration(util.GetEnvNumeric("RAG_SEARCH_TIMEOUT_SEC", int(cfg.SearchTimeout/time.Second))) * time.Second
	cfg.Debug = util.GetEnvBool("DEBUG", false)
	return cfg
}
