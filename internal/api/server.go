package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/yourusername/vmshub/internal/audit"
	"github.com/yourusername/vmshub/internal/broadcast"
	"github.com/yourusername/vmshub/internal/database"
	"github.com/yourusername/vmshub/internal/monitor"
	"github.com/yourusername/vmshub/internal/playback"
	"github.com/yourusername/vmshub/internal/stream"
	"github.com/yourusername/vmshub/internal/vms"
	"go.uber.org/zap"
)

// Server는 HTTP API 서버입니다
type Server struct {
	logger     *zap.Logger
	httpServer *http.Server
	router     *gin.Engine
	port       int

	cameras  *database.CameraRepository
	servers  *database.VMSServerRepository
	registry *vms.Registry
	resolver *stream.Resolver
	clips    *stream.ClipResolver
	tokens   *playback.TokenService
	tester   *vms.ConnectionTester
	monitor  *monitor.StatusMonitor
	hub      *broadcast.Hub
	audit    *audit.SQLiteRecorder
	hlsDir   string

	// 클립 다운로드 스트리밍용. 전체 타임아웃 없이 요청 컨텍스트로만 제한됨
	downloadClient *http.Client
}

// ServerConfig는 API 서버 설정
type ServerConfig struct {
	Port       int
	Production bool
	Logger     *zap.Logger

	Cameras  *database.CameraRepository
	Servers  *database.VMSServerRepository
	Registry *vms.Registry
	Resolver *stream.Resolver
	Clips    *stream.ClipResolver
	Tokens   *playback.TokenService
	Tester   *vms.ConnectionTester
	Monitor  *monitor.StatusMonitor
	Hub      *broadcast.Hub
	Audit    *audit.SQLiteRecorder

	// HLSDir, when set, is served statically under /hls (ffmpeg proxy mode)
	HLSDir string
}

// NewServer는 새로운 API 서버를 생성합니다
func NewServer(config ServerConfig) *Server {
	if !config.Production {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(correlationMiddleware())
	router.Use(loggerMiddleware(config.Logger))

	server := &Server{
		logger:   config.Logger,
		router:   router,
		port:     config.Port,
		cameras:  config.Cameras,
		servers:  config.Servers,
		registry: config.Registry,
		resolver: config.Resolver,
		clips:    config.Clips,
		tokens:   config.Tokens,
		tester:   config.Tester,
		monitor:  config.Monitor,
		hub:      config.Hub,
		audit:    config.Audit,
		hlsDir:   config.HLSDir,
		downloadClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: 10 * time.Second,
			},
		},
	}

	server.setupRoutes()

	return server
}

// setupRoutes는 라우트를 설정합니다
func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		companies := v1.Group("/companies/:companyId")
		{
			cameras := companies.Group("/cameras/:id")
			{
				cameras.GET("/live", s.handleLive)
				cameras.GET("/playback", s.handlePlayback)
				cameras.GET("/playback/range", s.handlePlaybackRange)
				cameras.GET("/playback/availability", s.handlePlaybackAvailability)
				cameras.GET("/events", s.handleCameraEvents)
			}

			companies.POST("/servers/:id/test", s.handleServerTest)
			companies.GET("/servers/:id/monitors", s.handleServerMonitors)
			companies.POST("/reconcile", s.handleReconcile)
		}

		// 토큰이 테넌트를 증명하므로 경로에 companyId가 없음
		v1.GET("/playback/proxy", s.handlePlaybackProxy)

		// WebSocket status events
		v1.GET("/events", s.handleEvents)
	}

	// HLS output of the ffmpeg relay proxy
	if s.hlsDir != "" {
		s.router.Static("/hls", s.hlsDir)
	}
}

// Start는 API 서버를 시작합니다
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting API server",
		zap.String("addr", addr),
	)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop은 API 서버를 종료합니다
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	if s.httpServer != nil {
		return s.httpServer.Close()
	}

	return nil
}

// Router returns the underlying gin engine, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// handleHealth는 헬스 체크를 처리합니다
func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	}

	if s.hub != nil {
		health["event_clients"] = s.hub.ClientCount()
	}
	if s.monitor != nil {
		health["reconciling"] = s.monitor.Running()
	}

	c.JSON(http.StatusOK, health)
}

// handleEvents는 상태 이벤트 WebSocket 연결을 처리합니다
func (s *Server) handleEvents(c *gin.Context) {
	companyID := c.Query("company_id")
	if companyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "company_id is required"})
		return
	}

	s.hub.HandleWebSocket(c.Writer, c.Request, companyID)
}

// corsMiddleware는 CORS 미들웨어입니다
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// correlationMiddleware는 요청마다 상관관계 ID를 부여합니다.
// 호출자가 보낸 X-Correlation-ID가 있으면 그대로 이어받습니다
func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Correlation-ID")
		if id == "" {
			id = uuid.NewString()
		}

		c.Set("correlation_id", id)
		c.Writer.Header().Set("X-Correlation-ID", id)

		c.Next()
	}
}

// loggerMiddleware는 로깅 미들웨어입니다
func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery
		if path == "/api/v1/playback/proxy" && query != "" {
			query = "token=***"
		}

		c.Next()

		latency := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
			zap.String("correlation_id", c.GetString("correlation_id")),
		)
	}
}
