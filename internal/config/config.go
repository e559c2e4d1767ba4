// Package config loads and saves the filetree configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/rescale/notebook-filetree/internal/constants"
)

// Config is the full client configuration.
//
// INI format:
//
//	[server]
//	backend = jupyter
//	url = http://localhost:8888
//	token = <jupyter token>
//	base_path =
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 8080
//	user =
//	no_proxy =
//
//	[upload]
//	chunk_size = 1048576
//	large_file_threshold = 15728640
//	chunked = auto
//
//	[tree]
//	poll_interval = 0s
//	restore_concurrency = 8
//	rate_limit = 20
//
//	[s3]
//	bucket = my-notebooks
//	region = us-east-1
//	prefix = home/
//	endpoint =
//
//	[azure]
//	account =
//	key =
//	container =
//	sas_url =
//	prefix =
//
//	[logging]
//	level = info
//	file =
//
//	[metrics]
//	addr =
type Config struct {
	Server  ServerConfig
	Proxy   ProxyConfig
	Upload  UploadConfig
	Tree    TreeConfig
	S3      S3Config
	Azure   AzureConfig
	Logging LoggingConfig
	Metrics MetricsConfig
}

// Backend names accepted in [server] backend.
const (
	BackendJupyter = "jupyter"
	BackendS3      = "s3"
	BackendAzure   = "azure"
	BackendMemory  = "memory"
)

// Chunking modes accepted in [upload] chunked.
const (
	ChunkedAuto = "auto" // ask the backend
	ChunkedOn   = "on"
	ChunkedOff  = "off"
)

// ServerConfig selects the content store.
type ServerConfig struct {
	Backend  string
	URL      string
	Token    string
	BasePath string // path prefix the tree is rooted at
}

// ProxyConfig contains HTTP proxy settings.
type ProxyConfig struct {
	Mode     string // "no-proxy", "system", "basic", "ntlm"
	Host     string
	Port     int
	User     string
	Password string // never written back to disk
	NoProxy  string // comma-separated bypass list
	Warmup   bool
}

// UploadConfig tunes the upload pipeline.
type UploadConfig struct {
	ChunkSize          int64
	LargeFileThreshold int64
	Chunked            string
}

// TreeConfig tunes refresh and restore.
type TreeConfig struct {
	// PollInterval is the period of background refresh. Zero disables polling.
	PollInterval time.Duration

	// RestoreConcurrency caps concurrent directory fetches during restore.
	RestoreConcurrency int

	// RateLimit is the sustained Contents API request rate (requests/sec).
	RateLimit float64
}

// S3Config configures the S3 backend.
type S3Config struct {
	Bucket   string
	Region   string
	Prefix   string
	Endpoint string // custom endpoint (MinIO, localstack); empty uses AWS

	// Static keys. Empty uses the default AWS credential chain.
	AccessKeyID     string
	SecretAccessKey string
}

// AzureConfig configures the Azure blob backend.
type AzureConfig struct {
	Account   string
	Key       string
	Container string
	SASURL    string // container SAS URL; takes precedence over account/key
	Prefix    string
}

// LoggingConfig configures log level and the optional log file.
type LoggingConfig struct {
	Level string
	File  string
}

// MetricsConfig configures the Prometheus listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string
}

// Validation errors
var (
	ErrMissingURL          = errors.New("server url is required for the jupyter backend")
	ErrUnknownBackend      = errors.New("unknown backend")
	ErrMissingBucket       = errors.New("s3 bucket is required for the s3 backend")
	ErrMissingContainer    = errors.New("azure container or sas_url is required for the azure backend")
	ErrInvalidChunkSize    = errors.New("upload chunk_size must be positive")
	ErrInvalidThreshold    = errors.New("upload large_file_threshold must not be smaller than chunk_size")
	ErrInvalidChunkedMode  = errors.New("upload chunked must be auto, on or off")
	ErrInvalidPollInterval = errors.New("tree poll_interval must be 0 or at least 2s")
	ErrInvalidConcurrency  = errors.New("tree restore_concurrency must be between 1 and 64")
	ErrInvalidProxyMode    = errors.New("proxy mode must be no-proxy, system, basic or ntlm")
)

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Backend: BackendJupyter,
			URL:     "http://localhost:8888",
		},
		Proxy: ProxyConfig{
			Mode: "no-proxy",
			Port: 8080,
		},
		Upload: UploadConfig{
			ChunkSize:          constants.ChunkSize,
			LargeFileThreshold: constants.LargeFileThreshold,
			Chunked:            ChunkedAuto,
		},
		Tree: TreeConfig{
			PollInterval:       constants.DefaultPollInterval,
			RestoreConcurrency: constants.DefaultRestoreConcurrency,
			RateLimit:          constants.ContentsRatePerSec,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from an INI file and applies environment overrides.
// A missing file yields defaults and no error. An empty path uses
// DefaultConfigPath.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			cfg.ApplyEnv()
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.ApplyEnv()
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	server := iniFile.Section("server")
	cfg.Server.Backend = strings.ToLower(server.Key("backend").MustString(cfg.Server.Backend))
	cfg.Server.URL = server.Key("url").MustString(cfg.Server.URL)
	cfg.Server.Token = server.Key("token").String()
	cfg.Server.BasePath = server.Key("base_path").String()

	proxy := iniFile.Section("proxy")
	cfg.Proxy.Mode = strings.ToLower(proxy.Key("mode").MustString(cfg.Proxy.Mode))
	cfg.Proxy.Host = proxy.Key("host").String()
	cfg.Proxy.Port = proxy.Key("port").MustInt(cfg.Proxy.Port)
	cfg.Proxy.User = proxy.Key("user").String()
	cfg.Proxy.NoProxy = proxy.Key("no_proxy").String()
	cfg.Proxy.Warmup = proxy.Key("warmup").MustBool(false)

	upload := iniFile.Section("upload")
	cfg.Upload.ChunkSize = upload.Key("chunk_size").MustInt64(cfg.Upload.ChunkSize)
	cfg.Upload.LargeFileThreshold = upload.Key("large_file_threshold").MustInt64(cfg.Upload.LargeFileThreshold)
	cfg.Upload.Chunked = strings.ToLower(upload.Key("chunked").MustString(cfg.Upload.Chunked))

	tree := iniFile.Section("tree")
	cfg.Tree.PollInterval = tree.Key("poll_interval").MustDuration(cfg.Tree.PollInterval)
	cfg.Tree.RestoreConcurrency = tree.Key("restore_concurrency").MustInt(cfg.Tree.RestoreConcurrency)
	cfg.Tree.RateLimit = tree.Key("rate_limit").MustFloat64(cfg.Tree.RateLimit)

	s3 := iniFile.Section("s3")
	cfg.S3.Bucket = s3.Key("bucket").String()
	cfg.S3.Region = s3.Key("region").String()
	cfg.S3.Prefix = s3.Key("prefix").String()
	cfg.S3.Endpoint = s3.Key("endpoint").String()
	cfg.S3.AccessKeyID = s3.Key("access_key_id").String()
	cfg.S3.SecretAccessKey = s3.Key("secret_access_key").String()

	azure := iniFile.Section("azure")
	cfg.Azure.Account = azure.Key("account").String()
	cfg.Azure.Key = azure.Key("key").String()
	cfg.Azure.Container = azure.Key("container").String()
	cfg.Azure.SASURL = azure.Key("sas_url").String()
	cfg.Azure.Prefix = azure.Key("prefix").String()

	logging := iniFile.Section("logging")
	cfg.Logging.Level = logging.Key("level").MustString(cfg.Logging.Level)
	cfg.Logging.File = logging.Key("file").String()

	cfg.Metrics.Addr = iniFile.Section("metrics").Key("addr").String()

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides the server URL and token from FILETREE_URL and
// FILETREE_TOKEN when they are set.
func (cfg *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("FILETREE_URL")); v != "" {
		cfg.Server.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("FILETREE_TOKEN")); v != "" {
		cfg.Server.Token = v
	}
}

// Save writes the configuration to an INI file.
// The proxy password is never persisted.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()
	sections := []struct {
		name string
		keys [][2]string
	}{
		{"server", [][2]string{
			{"backend", cfg.Server.Backend},
			{"url", cfg.Server.URL},
			{"token", cfg.Server.Token},
			{"base_path", cfg.Server.BasePath},
		}},
		{"proxy", [][2]string{
			{"mode", cfg.Proxy.Mode},
			{"host", cfg.Proxy.Host},
			{"port", fmt.Sprintf("%d", cfg.Proxy.Port)},
			{"user", cfg.Proxy.User},
			{"no_proxy", cfg.Proxy.NoProxy},
			{"warmup", fmt.Sprintf("%t", cfg.Proxy.Warmup)},
		}},
		{"upload", [][2]string{
			{"chunk_size", fmt.Sprintf("%d", cfg.Upload.ChunkSize)},
			{"large_file_threshold", fmt.Sprintf("%d", cfg.Upload.LargeFileThreshold)},
			{"chunked", cfg.Upload.Chunked},
		}},
		{"tree", [][2]string{
			{"poll_interval", cfg.Tree.PollInterval.String()},
			{"restore_concurrency", fmt.Sprintf("%d", cfg.Tree.RestoreConcurrency)},
			{"rate_limit", fmt.Sprintf("%g", cfg.Tree.RateLimit)},
		}},
		{"s3", [][2]string{
			{"bucket", cfg.S3.Bucket},
			{"region", cfg.S3.Region},
			{"prefix", cfg.S3.Prefix},
			{"endpoint", cfg.S3.Endpoint},
			{"access_key_id", cfg.S3.AccessKeyID},
			{"secret_access_key", cfg.S3.SecretAccessKey},
		}},
		{"azure", [][2]string{
			{"account", cfg.Azure.Account},
			{"key", cfg.Azure.Key},
			{"container", cfg.Azure.Container},
			{"sas_url", cfg.Azure.SASURL},
			{"prefix", cfg.Azure.Prefix},
		}},
		{"logging", [][2]string{
			{"level", cfg.Logging.Level},
			{"file", cfg.Logging.File},
		}},
		{"metrics", [][2]string{
			{"addr", cfg.Metrics.Addr},
		}},
	}

	for _, s := range sections {
		section, err := iniFile.NewSection(s.name)
		if err != nil {
			return fmt.Errorf("failed to create %s section: %w", s.name, err)
		}
		for _, kv := range s.keys {
			section.Key(kv[0]).SetValue(kv[1])
		}
	}

	// Temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// The token is sensitive
	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// Validate checks the configuration and returns the first problem found.
func (cfg *Config) Validate() error {
	switch cfg.Server.Backend {
	case BackendJupyter:
		if strings.TrimSpace(cfg.Server.URL) == "" {
			return ErrMissingURL
		}
	case BackendS3:
		if strings.TrimSpace(cfg.S3.Bucket) == "" {
			return ErrMissingBucket
		}
	case BackendAzure:
		if strings.TrimSpace(cfg.Azure.Container) == "" && strings.TrimSpace(cfg.Azure.SASURL) == "" {
			return ErrMissingContainer
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Server.Backend)
	}

	switch cfg.Proxy.Mode {
	case "", "no-proxy", "system", "basic", "ntlm":
	default:
		return ErrInvalidProxyMode
	}

	if cfg.Upload.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if cfg.Upload.LargeFileThreshold < cfg.Upload.ChunkSize {
		return ErrInvalidThreshold
	}
	switch cfg.Upload.Chunked {
	case ChunkedAuto, ChunkedOn, ChunkedOff:
	default:
		return ErrInvalidChunkedMode
	}

	if cfg.Tree.PollInterval != 0 && cfg.Tree.PollInterval < constants.MinPollInterval {
		return ErrInvalidPollInterval
	}
	if cfg.Tree.RestoreConcurrency < 1 || cfg.Tree.RestoreConcurrency > 64 {
		return ErrInvalidConcurrency
	}

	return nil
}
