// Package config loads and saves srbxfer settings: config.csv for engine and
// backend settings, profiles.ini for named connection profiles, and an
// optional .env file for backend credentials.
package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/transana/srbxfer/internal/constants"
)

// Backend names accepted by the "backend" key.
const (
	BackendMemory   = "memory"
	BackendLocalDir = "localdir"
	BackendS3       = "s3"
	BackendAzure    = "azure"
)

// Proxy modes accepted by the "proxy_mode" key.
const (
	ProxyNone   = "no-proxy"
	ProxySystem = "system"
	ProxyBasic  = "basic"
	ProxyNTLM   = "ntlm"
)

// Validation errors.
var (
	ErrInvalidChunkSize = errors.New("chunk_size out of range")
	ErrUnknownBackend   = errors.New("unknown backend")
	ErrInvalidLimitRate = errors.New("limit_rate must not be negative")
	ErrMissingBucket    = errors.New("s3_bucket is required for the s3 backend")
	ErrMissingContainer = errors.New("azure_container is required for the azure backend")
	ErrMissingAccount   = errors.New("azure_account or azure_endpoint is required for the azure backend")
)

// Config represents the srbxfer configuration
type Config struct {
	// Transfer settings
	ChunkSize      int   // bytes per read/write call
	LimitRate      int64 // bytes/sec, 0 = unlimited
	CheckDiskSpace bool  // verify free space before a download

	// Local side
	LocalDir string // default local directory for transfers

	// Remote store selection
	Backend         string // "memory", "localdir", "s3", "azure"
	StoreRoot       string // root directory for the localdir backend
	DefaultResource string // storage resource recorded on create

	// S3
	S3Bucket    string
	S3Region    string
	S3Endpoint  string // custom endpoint (MinIO, Ceph)
	S3PathStyle bool
	S3Prefix    string

	// Azure Blob
	AzureAccount   string
	AzureContainer string
	AzureEndpoint  string // overrides https://<account>.blob.core.windows.net (Azurite)
	AzurePrefix    string

	// Proxy settings
	ProxyMode     string // "no-proxy", "ntlm", "basic", "system"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string // runtime only, never persisted
	NoProxy       string // comma-separated hosts/CIDRs that bypass the proxy

	// HTTP retry layer under the S3 and Azure SDKs
	HTTPRetries int

	// History
	JournalPath string
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		ChunkSize:       constants.DefaultChunkSize,
		CheckDiskSpace:  true,
		LocalDir:        ".",
		Backend:         BackendLocalDir,
		StoreRoot:       filepath.Join(getConfigDir(), "store"),
		DefaultResource: constants.DefaultResource,
		ProxyMode:       ProxyNone,
		HTTPRetries:     constants.MaxRetries,
		JournalPath:     filepath.Join(getConfigDir(), "history.csv"),
	}
}

// LoadConfigCSV loads configuration from a CSV file
// CSV format: key,value pairs
func LoadConfigCSV(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // Return defaults if config doesn't exist
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read config CSV: %w", err)
	}

	for i, record := range records {
		if i == 0 && len(record) >= 2 && strings.ToLower(record[0]) == "key" {
			continue
		}
		if len(record) < 2 {
			continue
		}
		cfg.set(strings.TrimSpace(strings.ToLower(record[0])), strings.TrimSpace(record[1]))
	}

	return cfg, nil
}

func (c *Config) set(key, value string) {
	switch key {
	case "chunk_size":
		if v, err := strconv.Atoi(value); err == nil {
			c.ChunkSize = v
		}
	case "limit_rate":
		if v, err := parseByteSize(value); err == nil {
			c.LimitRate = v
		}
	case "check_disk_space":
		c.CheckDiskSpace = parseBool(value)
	case "local_dir":
		c.LocalDir = value
	case "backend":
		c.Backend = strings.ToLower(value)
	case "store_root":
		c.StoreRoot = value
	case "default_resource":
		c.DefaultResource = value
	case "s3_bucket":
		c.S3Bucket = value
	case "s3_region":
		c.S3Region = value
	case "s3_endpoint":
		c.S3Endpoint = value
	case "s3_path_style":
		c.S3PathStyle = parseBool(value)
	case "s3_prefix":
		c.S3Prefix = value
	case "azure_account":
		c.AzureAccount = value
	case "azure_container":
		c.AzureContainer = value
	case "azure_endpoint":
		c.AzureEndpoint = value
	case "azure_prefix":
		c.AzurePrefix = value
	case "proxy_mode":
		c.ProxyMode = value
	case "proxy_host":
		c.ProxyHost = value
	case "proxy_port":
		if v, err := strconv.Atoi(value); err == nil {
			c.ProxyPort = v
		}
	case "proxy_user":
		c.ProxyUser = value
	case "no_proxy":
		c.NoProxy = value
	case "http_retries":
		if v, err := strconv.Atoi(value); err == nil {
			c.HTTPRetries = v
		}
	case "journal_path":
		c.JournalPath = value
	case "proxy_password", "aws_secret_access_key", "azure_sas_token":
		// Secrets come from the environment or a .env file, never config.csv
		if value != "" {
			log.Printf("[WARN] %s in config file is ignored for security - set it in the environment or .env", key)
		}
	}
}

// SaveConfigCSV saves configuration to a CSV file
// CSV format: key,value pairs
func SaveConfigCSV(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write([]string{"key", "value"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	// proxy_password intentionally omitted
	for _, record := range cfg.Records() {
		if record[1] == "" {
			continue
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush config file: %w", err)
	}
	return nil
}

// Records returns the persisted settings as key/value pairs in file order.
func (c *Config) Records() [][]string {
	return [][]string{
		{"chunk_size", strconv.Itoa(c.ChunkSize)},
		{"limit_rate", strconv.FormatInt(c.LimitRate, 10)},
		{"check_disk_space", strconv.FormatBool(c.CheckDiskSpace)},
		{"local_dir", c.LocalDir},
		{"backend", c.Backend},
		{"store_root", c.StoreRoot},
		{"default_resource", c.DefaultResource},
		{"s3_bucket", c.S3Bucket},
		{"s3_region", c.S3Region},
		{"s3_endpoint", c.S3Endpoint},
		{"s3_path_style", strconv.FormatBool(c.S3PathStyle)},
		{"s3_prefix", c.S3Prefix},
		{"azure_account", c.AzureAccount},
		{"azure_container", c.AzureContainer},
		{"azure_endpoint", c.AzureEndpoint},
		{"azure_prefix", c.AzurePrefix},
		{"proxy_mode", c.ProxyMode},
		{"proxy_host", c.ProxyHost},
		{"proxy_port", strconv.Itoa(c.ProxyPort)},
		{"proxy_user", c.ProxyUser},
		{"no_proxy", c.NoProxy},
		{"http_retries", strconv.Itoa(c.HTTPRetries)},
		{"journal_path", c.JournalPath},
	}
}

// Set applies a single key/value pair, as read from config.csv. It returns
// an error for keys the file format does not know.
func (c *Config) Set(key, value string) error {
	key = strings.TrimSpace(strings.ToLower(key))
	for _, r := range c.Records() {
		if r[0] == key {
			c.set(key, strings.TrimSpace(value))
			return nil
		}
	}
	return fmt.Errorf("unknown config key: %s", key)
}

// MergeEnv applies SRBXFER_* environment overrides and picks up proxy
// settings from HTTPS_PROXY when none are configured.
func (c *Config) MergeEnv() {
	for _, r := range c.Records() {
		envKey := constants.EnvPrefix + strings.ToUpper(r[0])
		if v, ok := os.LookupEnv(envKey); ok {
			c.set(r[0], v)
		}
	}
	if v := os.Getenv(constants.EnvPrefix + "PROXY_PASSWORD"); v != "" {
		c.ProxyPassword = v
	}
	if envProxy := os.Getenv("HTTPS_PROXY"); envProxy != "" && c.ProxyHost == "" {
		c.parseProxyURL(envProxy)
	}
}

// parseProxyURL parses a proxy URL from environment variable
func (c *Config) parseProxyURL(proxyURL string) {
	proxyURL = strings.TrimPrefix(proxyURL, "http://")
	proxyURL = strings.TrimPrefix(proxyURL, "https://")
	proxyURL = strings.TrimSuffix(proxyURL, "/")

	parts := strings.Split(proxyURL, ":")
	if len(parts) >= 1 {
		c.ProxyHost = parts[0]
	}
	if len(parts) >= 2 {
		if port, err := strconv.Atoi(parts[1]); err == nil {
			c.ProxyPort = port
		}
	}
	if c.ProxyHost != "" && c.Proxy() == ProxyNone {
		c.ProxyMode = ProxySystem
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ChunkSize < constants.MinChunkSize || c.ChunkSize > constants.MaxChunkSize {
		return fmt.Errorf("%w: %d (must be between %d and %d)", ErrInvalidChunkSize,
			c.ChunkSize, constants.MinChunkSize, constants.MaxChunkSize)
	}
	if c.LimitRate < 0 {
		return ErrInvalidLimitRate
	}
	switch c.Backend {
	case BackendMemory, BackendLocalDir:
	case BackendS3:
		if c.S3Bucket == "" {
			return ErrMissingBucket
		}
	case BackendAzure:
		if c.AzureContainer == "" {
			return ErrMissingContainer
		}
		if c.AzureAccount == "" && c.AzureEndpoint == "" {
			return ErrMissingAccount
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}
	switch c.Proxy() {
	case ProxyNone, ProxySystem, ProxyBasic, ProxyNTLM:
	default:
		return fmt.Errorf("unsupported proxy mode: %s", c.ProxyMode)
	}
	return nil
}

// Proxy returns the normalised proxy mode; empty means ProxyNone.
func (c *Config) Proxy() string {
	if c.ProxyMode == "" {
		return ProxyNone
	}
	return strings.ToLower(c.ProxyMode)
}

// ApplyProfile overlays a connection profile on the configuration.
func (c *Config) ApplyProfile(p *Profile) {
	if p == nil {
		return
	}
	if p.Backend != "" {
		c.Backend = strings.ToLower(p.Backend)
	}
	if p.Resource != "" {
		c.DefaultResource = p.Resource
	}
	if p.Bucket != "" {
		c.S3Bucket = p.Bucket
	}
	if p.Container != "" {
		c.AzureContainer = p.Container
	}
	if p.StoreRoot != "" {
		c.StoreRoot = p.StoreRoot
	}
	if p.Endpoint != "" {
		switch c.Backend {
		case BackendS3:
			c.S3Endpoint = p.Endpoint
		case BackendAzure:
			c.AzureEndpoint = p.Endpoint
		}
	}
}

func parseBool(value string) bool {
	v := strings.ToLower(value)
	return v == "true" || v == "1" || v == "yes"
}

// parseByteSize accepts a plain byte count or a number with a K, M or G
// suffix (powers of 1024), e.g. "512K" or "2M".
func parseByteSize(value string) (int64, error) {
	v := strings.TrimSpace(strings.ToUpper(value))
	if v == "" {
		return 0, nil
	}
	mult := int64(1)
	switch v[len(v)-1] {
	case 'K':
		mult = 1 << 10
	case 'M':
		mult = 1 << 20
	case 'G':
		mult = 1 << 30
	}
	if mult > 1 {
		v = v[:len(v)-1]
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", value, err)
	}
	return int64(n * float64(mult)), nil
}

// ParseByteSize is the exported form of the limit_rate parser, used by CLI flags.
func ParseByteSize(value string) (int64, error) {
	return parseByteSize(value)
}
