package serve

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/agentmem/memory-service/internal/config"
	routeassociative "github.com/agentmem/memory-service/internal/plugin/route/associative"
	routelongterm "github.com/agentmem/memory-service/internal/plugin/route/longterm"
	routeretrieval "github.com/agentmem/memory-service/internal/plugin/route/retrieval"
	routeshortterm "github.com/agentmem/memory-service/internal/plugin/route/shortterm"
	routesystem "github.com/agentmem/memory-service/internal/plugin/route/system"
	registryembed "github.com/agentmem/memory-service/internal/registry/embed"
	registrygraph "github.com/agentmem/memory-service/internal/registry/graph"
	registrylongterm "github.com/agentmem/memory-service/internal/registry/longterm"
	registrymigrate "github.com/agentmem/memory-service/internal/registry/migrate"
	registryroute "github.com/agentmem/memory-service/internal/registry/route"
	registryshortterm "github.com/agentmem/memory-service/internal/registry/shortterm"
	registryvector "github.com/agentmem/memory-service/internal/registry/vector"
	"github.com/agentmem/memory-service/internal/service"
	"github.com/charmbracelet/log"
	"github.com/gin-gonic/gin"
)

// Server holds the running HTTP server and the memory facade behind it.
type Server struct {
	Config  *config.Config
	Service *service.Service
	Router  *gin.Engine
	Port    int

	httpServer *http.Server
}

// Shutdown drains in-flight requests and closes every tier.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	if s.Service.ShortTerm != nil {
		if cerr := s.Service.ShortTerm.Close(); cerr != nil {
			log.Warn("Failed to close short-term store", "err", cerr)
		}
	}
	if s.Service.LongTerm != nil {
		if cerr := s.Service.LongTerm.Close(ctx); cerr != nil {
			log.Warn("Failed to close long-term store", "err", cerr)
		}
	}
	if s.Service.Vector != nil {
		if cerr := s.Service.Vector.Close(); cerr != nil {
			log.Warn("Failed to close vector store", "err", cerr)
		}
	}
	if s.Service.Graph != nil {
		if cerr := s.Service.Graph.Close(ctx); cerr != nil {
			log.Warn("Failed to close graph store", "err", cerr)
		}
	}
	return err
}

// StartServer initializes every configured memory tier and starts the HTTP
// server. Use cfg.Port=0 for a random port; the bound port is Server.Port.
func StartServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	log.Info("Starting memory service",
		"port", cfg.Port,
		"vector", cfg.VectorEnabled(),
		"graph", cfg.GraphEnabled(),
		"embedding", cfg.EmbedType,
	)

	if err := registrymigrate.RunAll(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	svc, err := buildService(ctx, cfg)
	if err != nil {
		return nil, err
	}

	router := buildRouter(cfg, svc)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server stopped", "err", err)
		}
	}()

	routesystem.MarkReady()

	return &Server{
		Config:     cfg,
		Service:    svc,
		Router:     router,
		Port:       listener.Addr().(*net.TCPAddr).Port,
		httpServer: httpServer,
	}, nil
}

func buildService(ctx context.Context, cfg *config.Config) (*service.Service, error) {
	shortLoader, err := registryshortterm.Select("redis")
	if err != nil {
		return nil, err
	}
	shortStore, err := shortLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize short-term store: %w", err)
	}

	longLoader, err := registrylongterm.Select("mongo")
	if err != nil {
		return nil, err
	}
	longStore, err := longLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize long-term store: %w", err)
	}

	svc := &service.Service{ShortTerm: shortStore, LongTerm: longStore}

	// The embedding backend is always resolved through the registry; the
	// "disabled" plugin keeps the semantic tier answering with clear errors
	// when no backend is configured.
	embedType := cfg.EmbedType
	if embedType == "" {
		embedType = "disabled"
	}
	embedLoader, err := registryembed.Select(embedType)
	if err != nil {
		return nil, err
	}
	embedder, err := embedLoader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	svc.Embedder = embedder

	if cfg.VectorEnabled() {
		if embedType == "disabled" {
			return nil, fmt.Errorf("the vector tier requires an embedding provider: set --embedding-kind to a value other than 'disabled'")
		}
		vectorLoader, err := registryvector.Select("qdrant")
		if err != nil {
			return nil, err
		}
		vectorStore, err := vectorLoader(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		svc.Vector = vectorStore
	}

	if cfg.GraphEnabled() {
		graphLoader, err := registrygraph.Select("neo4j")
		if err != nil {
			return nil, err
		}
		graphStore, err := graphLoader(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize graph store: %w", err)
		}
		svc.Graph = graphStore
	}

	return svc, nil
}

func buildRouter(cfg *config.Config, svc *service.Service) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.AccessLog {
		router.Use(accessLogMiddleware("/health", "/ready", "/metrics"))
	}

	for _, loader := range registryroute.ManagementRouteLoaders() {
		if err := loader(router); err != nil {
			log.Warn("Failed to load management routes", "err", err)
		}
	}
	for _, loader := range registryroute.MainRouteLoaders() {
		if err := loader(router); err != nil {
			log.Warn("Failed to load routes", "err", err)
		}
	}

	routeshortterm.MountRoutes(router, svc)
	routelongterm.MountRoutes(router, svc)
	routeretrieval.MountRoutes(router, svc)
	routeassociative.MountRoutes(router, svc)
	return router
}

// accessLogMiddleware logs one line per request, skipping the given paths.
func accessLogMiddleware(skip ...string) gin.HandlerFunc {
	skipSet := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipSet[p] = true
	}
	return func(c *gin.Context) {
		if skipSet[c.Request.URL.Path] {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		log.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).Round(time.Microsecond),
		)
	}
}
