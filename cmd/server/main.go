// Command server runs the laddering interview engine's HTTP surface (spec
// §6): POST /interview/chat, /interview/load, /interview/save_order, and
// DELETE /session/{id}, wired the way the teacher's cmd/server/main.go
// assembles config, logger, database, middleware and handlers into one
// gin.Engine.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/ladderflow/engine/internal/analyzer"
	"github.com/ladderflow/engine/internal/api/rest"
	"github.com/ladderflow/engine/internal/config"
	"github.com/ladderflow/engine/internal/exprcache"
	"github.com/ladderflow/engine/internal/llm"
	"github.com/ladderflow/engine/internal/logger"
	"github.com/ladderflow/engine/internal/question"
	"github.com/ladderflow/engine/internal/session"
	"github.com/ladderflow/engine/internal/similarity"
	"github.com/ladderflow/engine/internal/stage"
	"github.com/ladderflow/engine/internal/store"
	"github.com/ladderflow/engine/internal/updater"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Logging)
	appLogger.Info("starting laddering interview engine", "port", cfg.Server.Port)

	db, err := openDatabase(cfg.Database)
	if err != nil {
		appLogger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsureSchema(ctx, db); err != nil {
		cancel()
		appLogger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	cancel()
	appLogger.Info("database connected and schema ensured")

	llmClient := llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model, -1)

	oracle := similarity.New(similarity.DefaultConfig(), similarity.NewLLMJudge(llmClient))
	deps := session.Deps{
		Analyzer:  analyzer.New(llmClient),
		Updater:   updater.New(oracle),
		Stage:     stage.New(exprcache.New(32)),
		Generator: question.New(llmClient),
	}

	repo := store.NewRepository(db)
	manager := session.NewManager(cfg.Session.CacheCapacity, cfg.Session.CacheTTL, repo)
	projects := config.NewProjectRegistry()

	handlers := rest.NewInterviewHandlers(manager, deps, projects, appLogger)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(rest.Recovery(appLogger))
	router.Use(rest.RequestLogger(appLogger))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	interview := router.Group("/interview")
	{
		interview.POST("/chat", handlers.HandleChat)
		interview.POST("/load", handlers.HandleLoad)
		interview.POST("/save_order", handlers.HandleSaveOrder)
		interview.GET("/config/:project_slug", handlers.HandleProjectConfig)
	}
	router.DELETE("/session/:id", handlers.HandleDeleteSession)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		appLogger.Info("http server starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			appLogger.Error("server error", "error", err)
			os.Exit(1)
		}
	case sig := <-shutdown:
		appLogger.Info("shutdown initiated", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			appLogger.Error("graceful shutdown failed", "error", err)
			server.Close()
		}
		appLogger.Info("server stopped")
	}
}

// openDatabase opens the Bun/pgdriver connection the store package persists
// session snapshots through, grounded on the teacher's
// testutil/database.go pgdriver wiring (narrowed to direct DSN connection,
// no container orchestration).
func openDatabase(cfg config.DatabaseConfig) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.URL)))
	sqldb.SetMaxOpenConns(cfg.MaxConnections)
	sqldb.SetConnMaxIdleTime(cfg.MaxIdleTime)
	sqldb.SetConnMaxLifetime(cfg.MaxConnLifetime)

	db := bun.NewDB(sqldb, pgdialect.New())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
