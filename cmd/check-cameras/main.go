package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/yourusername/vmshub/internal/audit"
	"github.com/yourusername/vmshub/internal/broadcast"
	"github.com/yourusername/vmshub/internal/core"
	"github.com/yourusername/vmshub/internal/database"
	"github.com/yourusername/vmshub/internal/monitor"
	"github.com/yourusername/vmshub/internal/status"
	"github.com/yourusername/vmshub/internal/vms"
	"github.com/yourusername/vmshub/internal/vms/shinobi"
	"github.com/yourusername/vmshub/pkg/logger"
)

// check-cameras runs a single status reconciliation pass and exits.
// Meant for cron jobs and for poking a deployment by hand.
func main() {
	godotenv.Load()

	configPath := flag.String("config", "configs/config.yaml", "설정 파일 경로")
	companyID := flag.String("company", "", "특정 회사만 점검 (생략 시 전체)")
	verbose := flag.Bool("verbose", false, "상세 로그 출력")
	flag.Parse()

	config, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logLevel := "warn"
	if *verbose {
		logLevel = "debug"
	}
	if err := logger.InitLogger(logger.LogConfig{Level: logLevel, Output: "console"}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	db, err := database.New(config.Database.Path, logger.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	cameras := database.NewCameraRepository(db, logger.Log)
	servers := database.NewVMSServerRepository(db, logger.Log)

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

	// 구독자 없는 허브: 전환 방송은 조용히 사라짐
	hub := broadcast.NewHub(broadcast.HubConfig{Logger: logger.Log})
	tracker := status.NewTracker(status.TrackerConfig{
		Cameras:     cameras,
		Recorder:    audit.NewSQLiteRecorder(db, logger.Log),
		Broadcaster: hub,
		Logger:      logger.Log,
	})

	mon := monitor.New(monitor.Config{
		Cameras:  cameras,
		Servers:  servers,
		Registry: registry,
		Prober: monitor.NewRTSPProber(monitor.RTSPProberConfig{
			TimeoutSec: config.Monitor.ProbeTimeout,
			Logger:     logger.Log,
		}),
		Tracker:     tracker,
		Logger:      logger.Log,
		Concurrency: config.Monitor.Concurrency,
	})

	if *companyID != "" {
		fmt.Printf("Checking cameras for company %s...\n", *companyID)
	} else {
		fmt.Println("Checking all cameras...")
	}

	summary, err := mon.RunOnce(context.Background(), monitor.Options{CompanyID: *companyID})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reconciliation pass failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nChecked: %d\n", summary.Checked)
	fmt.Printf("Changed: %d\n", summary.Changed)
	fmt.Printf("Skipped: %d\n", summary.Skipped)
	fmt.Printf("Errors:  %d\n", summary.Errors)
	fmt.Printf("Correlation ID: %s\n", summary.CorrelationID)

	if summary.Errors > 0 {
		os.Exit(2)
	}
	fmt.Println("✅ All cameras checked")
}
