// Package api implements the admin HTTP API: server status, connection and
// login monitoring, a few control operations, and the Prometheus endpoint.
package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/quarry-project/quarry/internal/config"
	"github.com/quarry-project/quarry/internal/db"
	"github.com/quarry-project/quarry/internal/events"
	"github.com/quarry-project/quarry/internal/network"
	"github.com/quarry-project/quarry/internal/protocol"
	"github.com/quarry-project/quarry/internal/server"
	"github.com/quarry-project/quarry/internal/util"
)

// Monitor is the view of the dispatch loop the API needs.
type Monitor interface {
	Snapshot(ctx context.Context) ([]network.ConnectionInfo, error)
	Stats(ctx context.Context) (server.Stats, error)
	Status(ctx context.Context) (protocol.StatusDocument, error)
	Disconnect(ctx context.Context, id uint64, reason string) (bool, error)
}

// LoginStore serves the login history.
type LoginStore interface {
	Recent(ctx context.Context, limit int) ([]db.LoginRecord, error)
}

// Server is the admin REST API server.
type Server struct {
	cfg      *config.Config
	eventBus *events.EventBus
	monitor  Monitor
	gatherer prometheus.Gatherer
	logins   LoginStore
	host     util.HostInfo
	probe    util.Probe

	httpServer *http.Server
	router     *gin.Engine

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates a new API server. gatherer may be nil to disable /metrics.
func NewServer(cfg *config.Config, eventBus *events.EventBus, monitor Monitor, gatherer prometheus.Gatherer) *Server {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:      cfg,
		eventBus: eventBus,
		monitor:  monitor,
		gatherer: gatherer,
		host:     util.DescribeHost(),
		probe:    util.HostProbe(),
	}
	s.router = s.buildRouter()
	return s
}

// SetLoginStore enables the login history endpoint.
func (s *Server) SetLoginStore(store LoginStore) {
	s.logins = store
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the bound address once Start has begun listening.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	apiCfg := s.cfg.API
	addr := apiCfg.Address
	if addr == "" {
		addr = config.DefaultAPIAddress
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if apiCfg.TLSEnabled {
		tlsConfig, err := loadTLSConfig(apiCfg)
		if err != nil {
			return err
		}
		srv.TLSConfig = tlsConfig
	}

	lc := network.ReuseAddrListenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("API server error: %w", err)
	}
	if apiCfg.TLSEnabled {
		ln = tls.NewListener(ln, srv.TLSConfig)
	}
	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	log.Info().Str("addr", ln.Addr().String()).Bool("tls", apiCfg.TLSEnabled).Msg("REST API server starting")

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server error: %w", err)
	}
	return nil
}

func loadTLSConfig(apiCfg config.APIConfig) (*tls.Config, error) {
	certFile, keyFile := apiCfg.TLSCertFile, apiCfg.TLSKeyFile
	if certFile == "" || keyFile == "" {
		return nil, fmt.Errorf("api.tls_cert_file and api.tls_key_file are required when TLS is enabled")
	}
	host, _, _ := net.SplitHostPort(apiCfg.Address)
	cert, err := util.AdminCertificate(certFile, keyFile, host)
	if err != nil {
		return nil, fmt.Errorf("failed to load API certificate: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
		},
	}, nil
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	// ClientIP only honours X-Forwarded-For from these peers; none by default
	if err := router.SetTrustedProxies(s.cfg.API.TrustedProxies); err != nil {
		log.Warn().Err(err).Msg("invalid api.trusted_proxies, trusting no proxies")
		_ = router.SetTrustedProxies(nil)
	}

	router.Use(gin.Recovery())
	router.Use(RequestLogger())
	router.Use(SecurityHeaders())

	allowedOrigins := s.cfg.API.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // must stay false with a "*" origin
		MaxAge:           12 * time.Hour,
	}))

	router.Use(NewRateLimiter(s.cfg.API.RateLimitRPS).Middleware())
	router.Use(IPWhitelist(s.cfg.API.IPWhitelist))

	public := router.Group("/api/public")
	{
		public.GET("/ping", s.handlePing)
		public.GET("/status", s.handleStatus)
		public.GET("/version", s.handleVersion)
	}

	monitor := router.Group("/api/monitor")
	{
		monitor.GET("/connections", s.handleConnections)
		monitor.GET("/stats", s.handleStats)
		monitor.GET("/logins", s.handleLogins)
		monitor.GET("/system", s.handleSystem)
	}

	control := router.Group("/api/control", RequireToken(s.cfg.API.Token))
	{
		control.POST("/disconnect/:id", s.handleDisconnect)
	}

	configure := router.Group("/api/configure", RequireToken(s.cfg.API.Token))
	{
		configure.GET("/config", s.handleGetConfig)
		configure.POST("/motd", s.handleSetMOTD)
		configure.POST("/max_players", s.handleSetMaxPlayers)
	}

	if s.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "quarry API is running"})
	})

	return router
}

// Stop gracefully stops the API server.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
