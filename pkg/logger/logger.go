package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Log는 전역 로거 인스턴스
	Log *zap.Logger
	// logConfig는 로거 설정을 저장 (자정 로테이션 재초기화용)
	logConfig *LogConfig
	// fileWriter는 현재 파일 writer
	fileWriter *lumberjack.Logger
	// ctx, cancel은 로테이션 고루틴 수명 관리
	ctx    context.Context
	cancel context.CancelFunc
)

// LogConfig는 로거 설정
type LogConfig struct {
	Level      string
	Output     string
	FilePath   string
	MaxSize    int
	MaxBackups int
	MaxAge     int
}

// InitLogger는 zap 로거를 초기화합니다
func InitLogger(cfg LogConfig) error {
	logConfig = &cfg
	ctx, cancel = context.WithCancel(context.Background())

	if err := initLoggerCore(cfg); err != nil {
		return err
	}

	// 파일 출력이 활성화된 경우 매일 자정에 새 날짜 파일로 전환
	if cfg.Output == "file" || cfg.Output == "both" {
		go dailyRotation()
	}

	return nil
}

// initLoggerCore는 설정에 따라 zap 코어를 구성합니다
func initLoggerCore(cfg LogConfig) error {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)
	fileEncoder := zapcore.NewJSONEncoder(encoderConfig)

	var core zapcore.Core
	switch cfg.Output {
	case "file":
		fileWriter = newFileWriter(cfg)
		core = zapcore.NewCore(fileEncoder, zapcore.AddSync(fileWriter), level)
	case "both":
		fileWriter = newFileWriter(cfg)
		core = zapcore.NewTee(
			zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level),
			zapcore.NewCore(fileEncoder, zapcore.AddSync(fileWriter), level),
		)
	default: // "console" 포함
		core = zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), level)
	}

	Log = zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return nil
}

// newFileWriter는 날짜별 로그 파일 writer를 생성합니다
// 예: logs/vmshub.log -> logs/vmshub-2026-08-25.log
func newFileWriter(cfg LogConfig) *lumberjack.Logger {
	logDir := filepath.Dir(cfg.FilePath)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
	}

	ext := filepath.Ext(cfg.FilePath)
	base := strings.TrimSuffix(cfg.FilePath, ext)
	dailyFilePath := fmt.Sprintf("%s-%s%s", base, time.Now().Format("2006-01-02"), ext)

	return &lumberjack.Logger{
		Filename:   dailyFilePath,
		MaxSize:    cfg.MaxSize,    // MB
		MaxBackups: cfg.MaxBackups, // 보관할 최대 파일 개수
		MaxAge:     cfg.MaxAge,     // 일 단위
		LocalTime:  true,
		Compress:   true,
	}
}

// dailyRotation은 매일 자정에 로거를 재초기화해 새 날짜 파일을 만듭니다
func dailyRotation() {
	for {
		now := time.Now()
		tomorrow := now.Add(24 * time.Hour)
		midnight := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, now.Location())

		select {
		case <-time.After(midnight.Sub(now)):
			if logConfig != nil {
				if Log != nil {
					_ = Log.Sync()
				}
				if fileWriter != nil {
					_ = fileWriter.Close()
				}
				_ = initLoggerCore(*logConfig)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Close는 로거를 종료하고 리소스를 정리합니다
func Close() {
	if cancel != nil {
		cancel()
	}
	if Log != nil {
		_ = Log.Sync()
	}
	if fileWriter != nil {
		_ = fileWriter.Close()
	}
}

// Sync는 로거 버퍼를 플러시합니다
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}

// Info는 info 레벨 로그를 출력합니다
func Info(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Info(msg, fields...)
	}
}

// Debug는 debug 레벨 로그를 출력합니다
func Debug(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Debug(msg, fields...)
	}
}

// Warn는 warn 레벨 로그를 출력합니다
func Warn(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Warn(msg, fields...)
	}
}

// Error는 error 레벨 로그를 출력합니다
func Error(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Error(msg, fields...)
	}
}

// Fatal는 fatal 레벨 로그를 출력하고 프로그램을 종료합니다
func Fatal(msg string, fields ...zap.Field) {
	if Log != nil {
		Log.Fatal(msg, fields...)
	}
}
