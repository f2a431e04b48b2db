package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ============================================================
// Configuration
// ============================================================

// DefaultFile - путь к необязательному TOML-файлу конфигурации.
const DefaultFile = "config/relay.toml"

type Config struct {
	Port         string `toml:"port"`
	Host         string `toml:"host"`
	Environment  string `toml:"env"`
	ReadTimeout  int    `toml:"read_timeout"`
	WriteTimeout int    `toml:"write_timeout"`
	LogLevel     string `toml:"log_level"`
	CORSOrigins  string `toml:"cors_origins"`

	Hub     HubConfig     `toml:"hub"`
	Storage StorageConfig `toml:"storage"`
	Cache   CacheConfig   `toml:"cache"`
	Layout  LayoutConfig  `toml:"layout"`
	Debug   DebugConfig   `toml:"debug"`
}

type HubConfig struct {
	URL       string `toml:"url"`
	APIKey    string `toml:"api_key"`
	VerifySSL bool   `toml:"verify_ssl"`
	// ReconnectInterval в миллисекундах.
	ReconnectInterval int `toml:"reconnect_interval"`
}

type StorageConfig struct {
	DBPath    string `toml:"db_path"`
	UploadDir string `toml:"upload_dir"`
	ClientDir string `toml:"client_dir"`
	// LegacyConfig - файл позиций старого формата для импорта при старте.
	LegacyConfig string `toml:"legacy_config"`
}

type CacheConfig struct {
	// TTL в секундах.
	TTL      int    `toml:"ttl"`
	RedisURL string `toml:"redis_url"`
}

type LayoutConfig struct {
	// SaveDebounce в миллисекундах.
	SaveDebounce int    `toml:"save_debounce"`
	ResizePolicy string `toml:"resize_policy"`
}

type DebugConfig struct {
	WriteCollections bool   `toml:"write_collections"`
	CollectionsDir   string `toml:"collections_dir"`
}

func defaults() *Config {
	return &Config{
		Port:         "3000",
		Host:         "0.0.0.0",
		Environment:  "development",
		ReadTimeout:  10,
		WriteTimeout: 10,
		LogLevel:     "info",
		CORSOrigins:  "*",
		Hub: HubConfig{
			VerifySSL:         true,
			ReconnectInterval: 5000,
		},
		Storage: StorageConfig{
			DBPath:    "data/db/floorplan.db",
			UploadDir: "uploads",
			ClientDir: "client",
		},
		Cache: CacheConfig{
			TTL: 300,
		},
		Layout: LayoutConfig{
			SaveDebounce: 5000,
			ResizePolicy: "freeze",
		},
		Debug: DebugConfig{
			CollectionsDir: "collections",
		},
	}
}

// Load загружает конфигурацию: значения по умолчанию, затем TOML-файл
// (CONFIG_FILE или DefaultFile, если существует), затем переменные окружения.
func Load() (*Config, error) {
	cfg := defaults()

	path := getEnv("CONFIG_FILE", DefaultFile)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if os.Getenv("CONFIG_FILE") != "" {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.Host = getEnv("HOST", c.Host)
	c.Environment = getEnv("ENV", c.Environment)
	c.ReadTimeout = getEnvAsInt("READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = getEnvAsInt("WRITE_TIMEOUT", c.WriteTimeout)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.CORSOrigins = getEnv("CORS_ORIGINS", c.CORSOrigins)

	c.Hub.URL = getEnv("HA_URL", c.Hub.URL)
	c.Hub.APIKey = getEnv("HA_API_KEY", c.Hub.APIKey)
	c.Hub.VerifySSL = getEnvAsBool("HA_VERIFY_SSL", c.Hub.VerifySSL)
	c.Hub.ReconnectInterval = getEnvAsInt("HA_RECONNECT_INTERVAL", c.Hub.ReconnectInterval)

	c.Storage.DBPath = getEnv("DB_PATH", c.Storage.DBPath)
	c.Storage.UploadDir = getEnv("UPLOAD_DIR", c.Storage.UploadDir)
	c.Storage.ClientDir = getEnv("CLIENT_DIR", c.Storage.ClientDir)
	c.Storage.LegacyConfig = getEnv("LEGACY_CONFIG", c.Storage.LegacyConfig)

	c.Cache.TTL = getEnvAsInt("CACHE_TTL", c.Cache.TTL)
	c.Cache.RedisURL = getEnv("REDIS_URL", c.Cache.RedisURL)

	c.Layout.SaveDebounce = getEnvAsInt("SAVE_DEBOUNCE", c.Layout.SaveDebounce)
	c.Layout.ResizePolicy = getEnv("RESIZE_POLICY", c.Layout.ResizePolicy)

	c.Debug.WriteCollections = getEnvAsBool("WRITE_COLLECTIONS", c.Debug.WriteCollections)
	c.Debug.CollectionsDir = getEnv("COLLECTIONS_DIR", c.Debug.CollectionsDir)
}

// Validate проверяет обязательные параметры ретранслятора.
func (c *Config) Validate() error {
	var errs []error
	if c.Hub.URL == "" {
		errs = append(errs, errors.New("HA_URL is required"))
	} else if u, err := url.Parse(c.Hub.URL); err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("HA_URL %q is not a valid URL", c.Hub.URL))
	}
	if c.Hub.APIKey == "" {
		errs = append(errs, errors.New("HA_API_KEY is required"))
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p <= 0 || p > 65535 {
		errs = append(errs, fmt.Errorf("PORT %q is not a valid port", c.Port))
	}
	if c.Cache.TTL < 0 {
		errs = append(errs, errors.New("CACHE_TTL must not be negative"))
	}
	return errors.Join(errs...)
}

// Addr - адрес для app.Listen.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) ReadTimeoutDuration() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

func (c *Config) WriteTimeoutDuration() time.Duration {
	return time.Duration(c.WriteTimeout) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTL) * time.Second
}

func (c *Config) SaveDebounce() time.Duration {
	return time.Duration(c.Layout.SaveDebounce) * time.Millisecond
}

func (h HubConfig) Reconnect() time.Duration {
	return time.Duration(h.ReconnectInterval) * time.Millisecond
}

// WebsocketURL - адрес websocket API хаба: http(s) -> ws(s) + /api/websocket.
func (h HubConfig) WebsocketURL() (string, error) {
	u, err := url.Parse(h.URL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/websocket"
	return u.String(), nil
}

// RESTURL - базовый адрес REST API хаба.
func (h HubConfig) RESTURL() string {
	return strings.TrimSuffix(h.URL, "/") + "/api"
}

// Redacted маскирует секрет для лога: первые и последние 4 символа.
func Redacted(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}
