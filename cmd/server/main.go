package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/yourusername/vmshub/internal/api"
	"github.com/yourusername/vmshub/internal/audit"
	"github.com/yourusername/vmshub/internal/broadcast"
	"github.com/yourusername/vmshub/internal/core"
	"github.com/yourusername/vmshub/internal/database"
	"github.com/yourusername/vmshub/internal/mediaproxy"
	"github.com/yourusername/vmshub/internal/monitor"
	"github.com/yourusername/vmshub/internal/playback"
	"github.com/yourusername/vmshub/internal/status"
	"github.com/yourusername/vmshub/internal/stream"
	"github.com/yourusername/vmshub/internal/vms"
	"github.com/yourusername/vmshub/internal/vms/shinobi"
	"github.com/yourusername/vmshub/pkg/logger"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/config.yaml"
	version           = "0.1.0"
)

func main() {
	// .env 파일이 있으면 로드 (없어도 무방)
	godotenv.Load()

	// 커맨드라인 플래그 파싱
	configPath := flag.String("config", defaultConfigPath, "설정 파일 경로")
	showVersion := flag.Bool("version", false, "버전 정보 출력")
	flag.Parse()

	// 버전 정보 출력
	if *showVersion {
		fmt.Printf("VMS Hub v%s\n", version)
		fmt.Printf("Go version: %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	// 설정 로드
	config, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 로거 초기화
	if err := logger.InitLogger(logger.LogConfig{
		Level:      config.Logging.Level,
		Output:     config.Logging.Output,
		FilePath:   config.Logging.FilePath,
		MaxSize:    config.Logging.MaxSize,
		MaxBackups: config.Logging.MaxBackups,
		MaxAge:     config.Logging.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 시작 로그
	logger.Info("Starting VMS Hub",
		zap.String("version", version),
		zap.String("go_version", runtime.Version()),
		zap.Int("num_cpu", runtime.NumCPU()),
	)

	// 설정 정보 출력
	logger.Info("Server configuration",
		zap.Int("http_port", config.Server.HTTPPort),
		zap.Bool("production", config.Server.Production),
		zap.String("db_path", config.Database.Path),
		zap.String("media_proxy_mode", config.MediaProxy.Mode),
		zap.Bool("monitor_enabled", config.Monitor.Enabled),
	)

	// 서버 컴포넌트 초기화
	app, err := initializeApplication(config)
	if err != nil {
		logger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer app.cleanup()

	logger.Info("All components initialized successfully")

	// 종료 시그널 대기
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	// 시그널 대기
	sig := <-sigChan
	logger.Info("Received shutdown signal",
		zap.String("signal", sig.String()),
	)

	logger.Info("Server stopped gracefully")
}

// Application은 애플리케이션 컴포넌트들을 관리합니다
type Application struct {
	config        *core.Config
	db            *database.DB
	hub           *broadcast.Hub
	ffmpegProxy   *mediaproxy.FFmpegProxy
	statusMonitor *monitor.StatusMonitor
	apiServer     *api.Server
}

// initializeApplication은 애플리케이션을 초기화합니다
func initializeApplication(config *core.Config) (*Application, error) {
	app := &Application{config: config}

	// 1. 데이터베이스
	db, err := database.New(config.Database.Path, logger.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.db = db
	cameras := database.NewCameraRepository(db, logger.Log)
	servers := database.NewVMSServerRepository(db, logger.Log)
	logger.Info("Database initialized", zap.String("path", config.Database.Path))

	// 2. 프로바이더 어댑터 레지스트리
	rewrite := vms.IdentityRewrite
	if config.VMS.RewriteLocalHost != "" {
		rewrite = vms.HostRewrite(config.VMS.RewriteLocalHost)
	}
	registry := vms.NewRegistry()
	registry.Register(shinobi.New(shinobi.Config{
		RequestTimeoutSec: config.VMS.HTTPTimeout,
		Rewrite:           rewrite,
		Logger:            logger.Log,
	}))
	logger.Info("Provider registry initialized")

	// 3. 이벤트 허브 + 감사 기록 + 상태 트래커
	app.hub = broadcast.NewHub(broadcast.HubConfig{Logger: logger.Log})
	recorder := audit.NewSQLiteRecorder(db, logger.Log)
	tracker := status.NewTracker(status.TrackerConfig{
		Cameras:     cameras,
		Recorder:    recorder,
		Broadcaster: app.hub,
		Logger:      logger.Log,
	})

	// 4. 미디어 프록시 (direct-rtsp 카메라용)
	var proxy stream.MediaProxy
	switch config.MediaProxy.Mode {
	case "mediamtx":
		proxy = mediaproxy.NewMediaMTX(mediaproxy.MediaMTXConfig{
			APIURL:     config.MediaProxy.MediaMTX.APIURL,
			HLSBaseURL: config.MediaProxy.MediaMTX.HLSBaseURL,
			Logger:     logger.Log,
		})
	case "ffmpeg":
		app.ffmpegProxy = mediaproxy.NewFFmpeg(mediaproxy.FFmpegConfig{
			Binary:        config.MediaProxy.FFmpeg.Binary,
			OutputDir:     config.MediaProxy.FFmpeg.OutputDir,
			PublicBaseURL: config.MediaProxy.FFmpeg.PublicBaseURL,
			IdleTimeout:   time.Duration(config.MediaProxy.FFmpeg.IdleTimeout) * time.Second,
			Logger:        logger.Log,
		})
		app.ffmpegProxy.StartSweeper()
		proxy = app.ffmpegProxy
	}

	// 5. 스트림/플레이백 리졸버
	resolver := stream.NewResolver(stream.ResolverConfig{
		Servers:  servers,
		Registry: registry,
		Proxy:    proxy,
		Tracker:  tracker,
		Logger:   logger.Log,
	})
	clips := stream.NewClipResolver(stream.ClipResolverConfig{
		Registry:     registry,
		CatalogLimit: config.VMS.CatalogLimit,
		Logger:       logger.Log,
	})
	tokens, err := playback.NewTokenService(playback.TokenServiceConfig{
		Secret:     config.Playback.TokenSecret,
		TTLSeconds: config.Playback.TokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	// 6. 연결 테스터 + 상태 모니터
	tester := vms.NewConnectionTester(vms.TesterConfig{
		Servers:  servers,
		Cameras:  cameras,
		Registry: registry,
		Logger:   logger.Log,
	})
	app.statusMonitor = monitor.New(monitor.Config{
		Cameras:  cameras,
		Servers:  servers,
		Registry: registry,
		Prober: monitor.NewRTSPProber(monitor.RTSPProberConfig{
			TimeoutSec: config.Monitor.ProbeTimeout,
			Logger:     logger.Log,
		}),
		Tracker:     tracker,
		Logger:      logger.Log,
		IntervalSec: config.Monitor.Interval,
		Concurrency: config.Monitor.Concurrency,
	})
	if config.Monitor.Enabled {
		app.statusMonitor.Start()
	}

	// 7. API 서버
	hlsDir := ""
	if config.MediaProxy.Mode == "ffmpeg" {
		hlsDir = config.MediaProxy.FFmpeg.OutputDir
	}
	app.apiServer = api.NewServer(api.ServerConfig{
		Port:       config.Server.HTTPPort,
		Production: config.Server.Production,
		Logger:     logger.Log,
		Cameras:    cameras,
		Servers:    servers,
		Registry:   registry,
		Resolver:   resolver,
		Clips:      clips,
		Tokens:     tokens,
		Tester:     tester,
		Monitor:    app.statusMonitor,
		Hub:        app.hub,
		Audit:      recorder,
		HLSDir:     hlsDir,
	})

	if err := app.apiServer.Start(); err != nil {
		return nil, fmt.Errorf("failed to start API server: %w", err)
	}
	logger.Info("API server started")

	return app, nil
}

// cleanup은 애플리케이션 리소스를 정리합니다
func (app *Application) cleanup() {
	logger.Info("Cleaning up application resources")

	if app.apiServer != nil {
		app.apiServer.Stop()
	}

	if app.statusMonitor != nil {
		app.statusMonitor.Stop()
	}

	if app.ffmpegProxy != nil {
		app.ffmpegProxy.StopAll()
	}

	if app.hub != nil {
		app.hub.Close()
	}

	if app.db != nil {
		app.db.Close()
	}

	logger.Info("Cleanup completed")
}
