package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver
	qdrantclient "github.com/qdrant/go-client/qdrant"
	"google.golang.org/genai"

	"github.com/soochol/actionplan/internal/agentrt"
	"github.com/soochol/actionplan/internal/api"
	"github.com/soochol/actionplan/internal/config"
	"github.com/soochol/actionplan/internal/db"
	"github.com/soochol/actionplan/internal/ingest"
	"github.com/soochol/actionplan/internal/knowledge"
	"github.com/soochol/actionplan/internal/modelapi"
	"github.com/soochol/actionplan/internal/notify"
	"github.com/soochol/actionplan/internal/pipeline"
	"github.com/soochol/actionplan/internal/repository"
	"github.com/soochol/actionplan/internal/retrieval"
	"github.com/soochol/actionplan/internal/schedule"
	"github.com/soochol/actionplan/internal/special"
	"github.com/soochol/actionplan/internal/supervisor"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		serve()
		return
	}
	fmt.Println("actionplan v0.1.0")
	fmt.Println("Usage: actionplan serve")
}

func serve() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading configuration from the environment as-is")
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var database *db.DB
	if cfg.Database.URL != "" {
		d, err := db.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Warn("database unavailable, using in-memory storage", "err", err)
		} else if err := d.Migrate(ctx); err != nil {
			slog.Error("database migration failed", "err", err)
			os.Exit(1)
		} else {
			slog.Info("database connected", "url", cfg.Database.URL)
			database = d
			defer database.Close()
		}
	}

	graph, vector := buildStores(cfg, database)

	var genaiClient *genai.Client
	if cfg.Vector.EmbeddingProvider == "gemini" {
		c, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  cfg.Agents["default"].APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			slog.Warn("gemini client unavailable, embedding will fail if selected", "err", err)
		} else {
			genaiClient = c
		}
	}
	resolver := modelapi.NewConfigResolver(cfg, genaiClient)

	prompts := agentrt.NewPromptLibrary()
	caller := agentrt.NewCaller(resolver, prompts, cfg)

	sup, err := supervisor.NewSupervisor(cfg, caller)
	if err != nil {
		slog.Error("supervisor construction failed", "err", err)
		os.Exit(1)
	}

	engine := retrieval.NewEngine(cfg, graph, vector, resolver)
	injector := special.NewInjector(graph)

	executors := []pipeline.StageExecutor{
		pipeline.NewOrchestrator(caller),
		pipeline.NewAnalyzerPhase1(caller, engine),
		pipeline.NewAnalyzerPhase2(caller, engine, cfg),
		pipeline.NewPhase3(graph, cfg),
		pipeline.NewSpecialProtocolsStage(injector),
		pipeline.NewExtractor(caller, graph, cfg),
		pipeline.NewSelector(caller, cfg),
		pipeline.NewDeduplicator(caller, cfg),
		pipeline.NewTiming(caller, cfg),
		pipeline.NewAssigner(caller, graph, cfg),
		pipeline.NewFormatter(),
	}

	runRepo := buildRunRepository(database)
	notifier := notify.New(cfg.Notify)

	runner := pipeline.NewRunner(executors, sup, cfg, runRepo, notifier)

	ingester, err := ingest.NewIngester(cfg, graph, vector, resolver)
	if err != nil {
		slog.Error("ingester construction failed", "err", err)
		os.Exit(1)
	}

	watcher := schedule.NewWatcher(cfg, ingester)
	if err := watcher.Start(ctx); err != nil {
		slog.Warn("schedule watcher failed to start", "err", err)
	} else {
		defer watcher.Stop()
	}

	srv := api.NewServer(runner, runRepo)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	slog.Info("starting actionplan server", "addr", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

// buildStores wraps database (already connected and migrated, or nil) and
// cfg.Vector into the knowledge-graph and vector-store backends, falling
// back to the in-memory implementations the same way the teacher's server
// fell back to in-memory storage when cfg.Database.URL was empty or
// unreachable.
func buildStores(cfg *config.Config, database *db.DB) (knowledge.GraphStore, knowledge.VectorStore) {
	var graph knowledge.GraphStore = knowledge.NewMemoryGraphStore()
	var vector knowledge.VectorStore = knowledge.NewMemoryVectorStore()

	if database != nil {
		graph = knowledge.NewPostgresGraphStore(database.Pool)
	}

	if cfg.Vector.Host != "" {
		client, err := qdrantclient.NewClient(&qdrantclient.Config{
			Host: cfg.Vector.Host,
			Port: cfg.Vector.Port,
		})
		if err != nil {
			slog.Warn("qdrant unavailable, using in-memory vector store", "err", err)
		} else {
			vector = knowledge.NewQdrantVectorStore(client, cfg.Vector.EmbeddingDimension)
			slog.Info("qdrant connected", "host", cfg.Vector.Host, "port", cfg.Vector.Port)
		}
	}

	return graph, vector
}

// buildRunRepository mirrors buildStores' fallback shape for generation-run
// history: a Postgres-backed repository wrapping database when connected,
// the plain in-memory one otherwise.
func buildRunRepository(database *db.DB) repository.GenerationRunRepository {
	mem := repository.NewMemoryGenerationRunRepository()
	if database == nil {
		return mem
	}
	return repository.NewPersistentGenerationRunRepository(mem, database)
}
