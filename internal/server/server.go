package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cms-engine/internal/chat"
	"github.com/cms-engine/internal/config"
	"github.com/cms-engine/internal/embedding"
	"github.com/cms-engine/internal/ingest"
	"github.com/cms-engine/internal/review"
	"github.com/cms-engine/internal/search"
	"github.com/cms-engine/internal/settings"
	"github.com/cms-engine/internal/storage"
	"github.com/cms-engine/internal/translate"
	"github.com/cms-engine/pkg/logger"
)

// Deps bundles the services the HTTP surface exposes
type Deps struct {
	Ingest     *ingest.Agent
	Review     *review.Workflow
	Ingestor   *embedding.Ingestor
	Retriever  *search.Retriever
	Chat       *chat.Service
	Translate  *translate.Service
	Settings   *settings.Cache
	Repository storage.Repository
	Counter    Counter
}

// Server is the HTTP API for the content engine
type Server struct {
	engine *gin.Engine
	http   *http.Server
	cfg    config.ServerConfig
	deps   Deps
	log    *logger.Logger
}

// New creates the server and wires all routes
func New(cfg config.ServerConfig, chatCfg config.ChatConfig, deps Deps, log *logger.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine: gin.New(),
		cfg:    cfg,
		deps:   deps,
		log:    log.WithComponent("server"),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(RequestID())

	s.engine.GET("/healthz", s.handleHealth)

	api := s.engine.Group("/api")

	// Public endpoints: no identity, rate-limited per IP
	limited := api.Group("")
	limited.Use(RateLimit(deps.Counter, chatCfg.RateLimit, chatCfg.RateWindow, s.log))
	limited.POST("/search", s.handleSearch)
	limited.POST("/chat", s.handleChat)
	limited.POST("/posts/:id/translate", s.handleTranslate)
	limited.POST("/contact", s.handleContact)
	limited.POST("/track", s.handleTrack)
	limited.GET("/posts", s.handleListPosts)
	limited.GET("/posts/:id", s.handleGetPost)

	// Operator endpoints: shared-secret header
	admin := api.Group("/admin")
	admin.Use(AdminAuth(cfg.AdminToken))
	admin.POST("/ingest/run", s.handleIngestRun)
	admin.POST("/embeddings/ingest", s.handleEmbeddingIngest)
	admin.GET("/imports", s.handleListImports)
	admin.POST("/imports/:id/approve", s.handleApproveImport)
	admin.POST("/imports/:id/reject", s.handleRejectImport)
	admin.DELETE("/imports/:id", s.handleDeleteImport)
	admin.GET("/sources", s.handleListSources)
	admin.POST("/sources", s.handleCreateSource)
	admin.PUT("/sources/:id", s.handleUpdateSource)
	admin.DELETE("/sources/:id", s.handleDeleteSource)
	admin.GET("/contacts", s.handleListContacts)
	admin.GET("/settings/:key", s.handleGetSetting)
	admin.PUT("/settings/:key", s.handlePutSetting)

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Engine exposes the router, mainly for tests
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until the listener fails or Shutdown is called
func (s *Server) Run() error {
	s.log.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
