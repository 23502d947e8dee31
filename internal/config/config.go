package config

import (
	"fmt"
	"os"
	"time"

	"recordstore/logging"
	"recordstore/recordstore"
	"recordstore/utils"

	"gopkg.in/yaml.v3"
)

// RawConfig holds the application configuration as read from YAML and env
type RawConfig struct {
	Server  RawServerConfig  `yaml:"server"`
	Logging RawLoggingConfig `yaml:"logging"`
	Store   RawStoreConfig   `yaml:"store"`
}

// RawServerConfig holds HTTP server settings; timeouts are in seconds
type RawServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
}

// RawLoggingConfig holds logging-related configuration
type RawLoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error, fatal
	FileName    string `yaml:"fileName"`
	LoggerName  string `yaml:"loggerName"`
	ServiceName string `yaml:"serviceName"`
	MaxSizeMB   int    `yaml:"maxSizeMB"`
	MaxBackups  int    `yaml:"maxBackups"`
	MaxAgeDays  int    `yaml:"maxAgeDays"`
	Compress    bool   `yaml:"compress"`
}

// RawStoreConfig selects and tunes the record store. Durations are in milliseconds.
type RawStoreConfig struct {
	URI                      string `yaml:"uri"` // mongodb://, mongodb+srv:// or bolt://<path>
	Database                 string `yaml:"database"`
	Collection               string `yaml:"collection"`
	SchemaName               string `yaml:"schemaName"`
	AppName                  string `yaml:"appName"`
	OpTimeoutMs              int    `yaml:"opTimeoutMs"`
	ConnectTimeoutMs         int    `yaml:"connectTimeoutMs"`
	ServerSelectionTimeoutMs int    `yaml:"serverSelectionTimeoutMs"`
	MaxPoolSize              int    `yaml:"maxPoolSize"`
	MinPoolSize              int    `yaml:"minPoolSize"`
	DirectConnection         *bool  `yaml:"directConnection"`
}

const defaultStoreURI = "mongodb://localhost:27017"

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() *RawConfig {
	return &RawConfig{
		Server: RawServerConfig{
			Host:         utils.GetEnv("SERVER_HOST", "localhost"),
			Port:         utils.GetEnvInt("SERVER_PORT", 4480),
			ReadTimeout:  utils.GetEnvInt("SERVER_READ_TIMEOUT", 10),
			WriteTimeout: utils.GetEnvInt("SERVER_WRITE_TIMEOUT", 10),
		},
		Logging: RawLoggingConfig{
			Level:       utils.GetEnv("LOG_LEVEL", "info"),
			FileName:    utils.GetEnv("LOG_FILE_NAME", "recordstore.log"),
			LoggerName:  utils.GetEnv("LOG_LOGGER_NAME", "main"),
			ServiceName: utils.GetEnv("LOG_SERVICE_NAME", "recordstore"),
			MaxSizeMB:   utils.GetEnvInt("LOG_MAX_SIZE_MB", 50),
			MaxBackups:  utils.GetEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAgeDays:  utils.GetEnvInt("LOG_MAX_AGE_DAYS", 30),
			Compress:    utils.GetEnvBool("LOG_COMPRESS", true),
		},
		Store: RawStoreConfig{
			URI:                      utils.GetEnv("STORE_URI", defaultStoreURI),
			Database:                 utils.GetEnv("STORE_DATABASE", ""),
			Collection:               utils.GetEnv("STORE_COLLECTION", ""),
			SchemaName:               utils.GetEnv("STORE_SCHEMA_NAME", ""),
			AppName:                  utils.GetEnv("STORE_APP_NAME", ""),
			OpTimeoutMs:             utils.GetEnvInt("STORE_OP_TIMEOUT_MS", 0),
			ConnectTimeoutMs:         utils.GetEnvInt("STORE_CONNECT_TIMEOUT_MS", 0),
			ServerSelectionTimeoutMs: utils.GetEnvInt("STORE_SERVER_SELECTION_TIMEOUT_MS", 0),
			MaxPoolSize:              utils.GetEnvInt("STORE_MAX_POOL_SIZE", 0),
			MinPoolSize:              utils.GetEnvInt("STORE_MIN_POOL_SIZE", 0),
		},
	}
}

// LoadConfigFromFile loads configuration from a YAML file with environment variable overrides
func LoadConfigFromFile(configPath string) (*RawConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", configPath, err)
	}

	// start from defaults so a partial file stays usable
	config := LoadConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing YAML config file %s: %w", configPath, err)
	}

	overrideWithEnvVars(config)
	return config, nil
}

// LoadConfigWithDefaults loads configuration from file if it exists, falling back to environment variables and defaults
func LoadConfigWithDefaults(configPath string) *RawConfig {
	if configPath != "" {
		if config, err := LoadConfigFromFile(configPath); err == nil {
			return config
		}
	}
	return LoadConfig()
}

func overrideWithEnvVars(config *RawConfig) {
	overrideServerConfig(&config.Server)
	overrideLoggingConfig(&config.Logging)
	overrideStoreConfig(&config.Store)
}

func overrideServerConfig(server *RawServerConfig) {
	if host := utils.GetEnv("SERVER_HOST", ""); host != "" {
		server.Host = host
	}
	if port := utils.GetEnvInt("SERVER_PORT", -1); port != -1 {
		server.Port = port
	}
	if readTimeout := utils.GetEnvInt("SERVER_READ_TIMEOUT", -1); readTimeout != -1 {
		server.ReadTimeout = readTimeout
	}
	if writeTimeout := utils.GetEnvInt("SERVER_WRITE_TIMEOUT", -1); writeTimeout != -1 {
		server.WriteTimeout = writeTimeout
	}
}

func overrideLoggingConfig(logging *RawLoggingConfig) {
	if level := utils.GetEnv("LOG_LEVEL", ""); level != "" {
		logging.Level = level
	}
	if fileName := utils.GetEnv("LOG_FILE_NAME", ""); fileName != "" {
		logging.FileName = fileName
	}
	if loggerName := utils.GetEnv("LOG_LOGGER_NAME", ""); loggerName != "" {
		logging.LoggerName = loggerName
	}
	if serviceName := utils.GetEnv("LOG_SERVICE_NAME", ""); serviceName != "" {
		logging.ServiceName = serviceName
	}
	if maxSize := utils.GetEnvInt("LOG_MAX_SIZE_MB", -1); maxSize != -1 {
		logging.MaxSizeMB = maxSize
	}
	if maxBackups := utils.GetEnvInt("LOG_MAX_BACKUPS", -1); maxBackups != -1 {
		logging.MaxBackups = maxBackups
	}
	if maxAge := utils.GetEnvInt("LOG_MAX_AGE_DAYS", -1); maxAge != -1 {
		logging.MaxAgeDays = maxAge
	}
	if os.Getenv("LOG_COMPRESS") != "" {
		logging.Compress = utils.GetEnvBool("LOG_COMPRESS", logging.Compress)
	}
}

func overrideStoreConfig(store *RawStoreConfig) {
	if uri := utils.GetEnv("STORE_URI", ""); uri != "" {
		store.URI = uri
	}
	if db := utils.GetEnv("STORE_DATABASE", ""); db != "" {
		store.Database = db
	}
	if coll := utils.GetEnv("STORE_COLLECTION", ""); coll != "" {
		store.Collection = coll
	}
	if schema := utils.GetEnv("STORE_SCHEMA_NAME", ""); schema != "" {
		store.SchemaName = schema
	}
	if appName := utils.GetEnv("STORE_APP_NAME", ""); appName != "" {
		store.AppName = appName
	}
	if ms := utils.GetEnvInt("STORE_OP_TIMEOUT_MS", -1); ms != -1 {
		store.OpTimeoutMs = ms
	}
	if ms := utils.GetEnvInt("STORE_CONNECT_TIMEOUT_MS", -1); ms != -1 {
		store.ConnectTimeoutMs = ms
	}
	if ms := utils.GetEnvInt("STORE_SERVER_SELECTION_TIMEOUT_MS", -1); ms != -1 {
		store.ServerSelectionTimeoutMs = ms
	}
	if n := utils.GetEnvInt("STORE_MAX_POOL_SIZE", -1); n != -1 {
		store.MaxPoolSize = n
	}
	if n := utils.GetEnvInt("STORE_MIN_POOL_SIZE", -1); n != -1 {
		store.MinPoolSize = n
	}
	if os.Getenv("STORE_DIRECT_CONNECTION") != "" {
		direct := utils.GetEnvBool("STORE_DIRECT_CONNECTION", false)
		store.DirectConnection = &direct
	}
}

// Validate rejects values that would fail later in less obvious ways.
func (cfg *RawConfig) Validate() error {
	if cfg.Store.URI == "" {
		return fmt.Errorf("store uri is required")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}
	if cfg.Store.OpTimeoutMs < 0 || cfg.Store.ConnectTimeoutMs < 0 || cfg.Store.ServerSelectionTimeoutMs < 0 {
		return fmt.Errorf("store timeouts must not be negative")
	}
	if cfg.Store.MaxPoolSize < 0 || cfg.Store.MinPoolSize < 0 {
		return fmt.Errorf("store pool sizes must not be negative")
	}
	return nil
}

// ConvertToLoggerConfig converts RawLoggingConfig to logging.LoggerConfig
func (cfg RawLoggingConfig) ConvertToLoggerConfig() logging.LoggerConfig {
	return logging.LoggerConfig{
		Level:       logging.ParseLevel(cfg.Level),
		FilePath:    cfg.FileName,
		LoggerName:  cfg.LoggerName,
		ServiceName: cfg.ServiceName,
		MaxSizeMB:   cfg.MaxSizeMB,
		MaxBackups:  cfg.MaxBackups,
		MaxAgeDays:  cfg.MaxAgeDays,
		Compress:    cfg.Compress,
	}
}

// ToOptions converts the store section to manager options. Unset values keep
// the record store defaults.
func (cfg RawStoreConfig) ToOptions() recordstore.Options {
	return recordstore.Options{
		Collection: cfg.Collection,
		Database:   cfg.Database,
		SchemaName: cfg.SchemaName,
		OpTimeout:  millis(cfg.OpTimeoutMs),
		AdditionalOptions: recordstore.ClientOptions{
			AppName:                cfg.AppName,
			ConnectTimeout:         millis(cfg.ConnectTimeoutMs),
			ServerSelectionTimeout: millis(cfg.ServerSelectionTimeoutMs),
			MaxPoolSize:            uint64(max(cfg.MaxPoolSize, 0)),
			MinPoolSize:            uint64(max(cfg.MinPoolSize, 0)),
			DirectConnection:       cfg.DirectConnection,
		},
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
