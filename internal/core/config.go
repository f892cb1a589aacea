package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config는 전체 애플리케이션 설정을 담는 구조체
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	VMS        VMSConfig        `yaml:"vms"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Monitor    MonitorConfig    `yaml:"monitor"`
	MediaProxy MediaProxyConfig `yaml:"media_proxy"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	HTTPPort   int  `yaml:"http_port"`
	Production bool `yaml:"production"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type VMSConfig struct {
	HTTPTimeout      int    `yaml:"http_timeout"`
	CatalogLimit     int    `yaml:"catalog_limit"`
	RewriteLocalHost string `yaml:"rewrite_local_host"`
}

type PlaybackConfig struct {
	TokenSecret string `yaml:"token_secret"`
	TokenTTL    int    `yaml:"token_ttl"`
}

type MonitorConfig struct {
	Enabled      bool `yaml:"enabled"`
	Interval     int  `yaml:"interval"`
	ProbeTimeout int  `yaml:"probe_timeout"`
	Concurrency  int  `yaml:"concurrency"`
}

type MediaProxyConfig struct {
	Mode     string            `yaml:"mode"`
	MediaMTX MediaMTXConfig    `yaml:"mediamtx"`
	FFmpeg   FFmpegProxyConfig `yaml:"ffmpeg"`
}

type MediaMTXConfig struct {
	APIURL     string `yaml:"api_url"`
	HLSBaseURL string `yaml:"hls_base_url"`
}

type FFmpegProxyConfig struct {
	Binary        string `yaml:"binary"`
	OutputDir     string `yaml:"output_dir"`
	PublicBaseURL string `yaml:"public_base_url"`
	IdleTimeout   int    `yaml:"idle_timeout"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// LoadConfig는 YAML 파일에서 설정을 로드합니다
// 민감한 값은 환경변수(VMSHUB_*)가 파일 설정보다 우선합니다
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnvOverrides()
	config.applyDefaults()

	// 설정 검증
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides는 환경변수로 민감한 설정을 덮어씁니다
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("VMSHUB_TOKEN_SECRET"); v != "" {
		c.Playback.TokenSecret = v
	}
	if v := os.Getenv("VMSHUB_DB_PATH"); v != "" {
		c.Database.Path = v
	}
}

// applyDefaults는 생략된 설정에 기본값을 채웁니다
func (c *Config) applyDefaults() {
	if c.VMS.HTTPTimeout <= 0 {
		c.VMS.HTTPTimeout = 10
	}
	if c.VMS.CatalogLimit <= 0 {
		c.VMS.CatalogLimit = 100
	}
	if c.Playback.TokenTTL <= 0 {
		c.Playback.TokenTTL = 300
	}
	if c.Monitor.Interval <= 0 {
		c.Monitor.Interval = 60
	}
	if c.Monitor.ProbeTimeout <= 0 {
		c.Monitor.ProbeTimeout = 5
	}
	if c.Monitor.Concurrency <= 0 {
		c.Monitor.Concurrency = 1
	}
	if c.MediaProxy.Mode == "" {
		c.MediaProxy.Mode = "none"
	}
	if c.MediaProxy.FFmpeg.Binary == "" {
		c.MediaProxy.FFmpeg.Binary = "ffmpeg"
	}
	if c.MediaProxy.FFmpeg.IdleTimeout <= 0 {
		c.MediaProxy.FFmpeg.IdleTimeout = 120
	}
	// API 서버가 /hls에서 출력 디렉터리를 직접 서빙함
	if c.MediaProxy.Mode == "ffmpeg" && c.MediaProxy.FFmpeg.PublicBaseURL == "" {
		c.MediaProxy.FFmpeg.PublicBaseURL = "/hls"
	}
}

// Validate는 설정값의 유효성을 검증합니다
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Playback.TokenSecret == "" {
		return fmt.Errorf("playback token_secret is required (config or VMSHUB_TOKEN_SECRET)")
	}

	switch c.MediaProxy.Mode {
	case "none", "mediamtx", "ffmpeg":
	default:
		return fmt.Errorf("unknown media_proxy mode: %s", c.MediaProxy.Mode)
	}

	if c.MediaProxy.Mode == "mediamtx" {
		if c.MediaProxy.MediaMTX.APIURL == "" || c.MediaProxy.MediaMTX.HLSBaseURL == "" {
			return fmt.Errorf("mediamtx mode requires api_url and hls_base_url")
		}
	}

	if c.MediaProxy.Mode == "ffmpeg" {
		if c.MediaProxy.FFmpeg.OutputDir == "" {
			return fmt.Errorf("ffmpeg mode requires output_dir")
		}
	}

	return nil
}
