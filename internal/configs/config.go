package configs

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"property-feed-service/internal/constants"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// maxImportChunkSize: 49 колонок на строку при лимите PostgreSQL в 65535 параметров
const maxImportChunkSize = 1000

type HTTPConfig struct {
	Port               string
	CORSAllowedOrigins []string
	MaxUploadBytes     int64
}

type DBConfig struct {
	URL         string
	AutoMigrate bool
	MaxConns    int32
}

type RabbitMQConfig struct {
	Enabled bool
	URL     string
}

type StdoutLogConfig struct {
	Level string
}

type FluentBitConfig struct {
	Enabled bool
	Host    string
	Port    int
	Level   string
}

type LocalStoreConfig struct {
	Path       string // пусто - хранилище в памяти
	QuotaBytes int64
}

type CacheConfig struct {
	PersistLimit         int
	PersistFallbackLimit int
}

type ImportConfig struct {
	ChunkSize          int
	RemoteReloadLimit  int
	StableSyntheticIDs bool
	FetchTimeout       time.Duration
	SyncTimeout        time.Duration
	TrackerMaxRuns     int
}

// AppConfig - вся конфигурация сервиса
type AppConfig struct {
	AppName      string
	HTTP         HTTPConfig
	Database     DBConfig
	RabbitMQ     RabbitMQConfig
	FluentBit    FluentBitConfig
	StdoutLogger StdoutLogConfig
	LocalStore   LocalStoreConfig
	Cache        CacheConfig
	Import       ImportConfig
}

// LoadConfig читает .env (если он есть) и переменные окружения.
// Явно переданный путь к .env обязан существовать.
func LoadConfig(envPath ...string) (*AppConfig, error) {
	if len(envPath) > 0 {
		if err := godotenv.Load(envPath[0]); err != nil {
			return nil, fmt.Errorf("could not load .env file (path: %s): %w", envPath[0], err)
		}
	} else if err := godotenv.Load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("could not load .env file: %w", err)
		}
		log.Println("Info: .env file not found, using process environment only.")
	}

	cfg := &AppConfig{}
	cfg.AppName = getEnvAsString("APP_NAME", "property-feed-service")

	cfg.HTTP.Port = getEnvAsString("PORT", "8080")
	cfg.HTTP.CORSAllowedOrigins = getEnvAsList("CORS_ALLOWED_ORIGINS")
	cfg.HTTP.MaxUploadBytes = int64(getEnvAsInt("MAX_UPLOAD_MB", 50)) * 1024 * 1024

	cfg.Database.URL = os.Getenv("DATABASE_URL")
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	cfg.Database.AutoMigrate = getEnvAsBool("DATABASE_AUTO_MIGRATE", false)
	cfg.Database.MaxConns = int32(getEnvAsInt("DATABASE_MAX_CONNS", 0))

	cfg.RabbitMQ.Enabled = getEnvAsBool("RABBITMQ_ENABLED", false)
	if cfg.RabbitMQ.Enabled {
		cfg.RabbitMQ.URL = os.Getenv("RABBITMQ_URL")
		if cfg.RabbitMQ.URL == "" {
			return nil, fmt.Errorf("RABBITMQ_URL environment variable is required when RABBITMQ_ENABLED is true")
		}
	}

	cfg.FluentBit.Enabled = getEnvAsBool("FLUENTBIT_ENABLED", false)
	if cfg.FluentBit.Enabled {
		cfg.FluentBit.Host = os.Getenv("FLUENTBIT_HOST")
		if cfg.FluentBit.Host == "" {
			log.Println("WARNING: FLUENTBIT_ENABLED is true, but FLUENTBIT_HOST is not set. Disabling Fluent Bit.")
			cfg.FluentBit.Enabled = false
		}
		cfg.FluentBit.Port = getEnvAsInt("FLUENTBIT_PORT", 24224)
		cfg.FluentBit.Level = getEnvAsString("FLUENTBIT_LOG_LEVEL", "info")
	}
	cfg.StdoutLogger.Level = getEnvAsString("STDOUT_LOG_LEVEL", "debug")

	cfg.LocalStore.Path = getEnvAsString("LOCAL_STORE_PATH", "data/local_store.db")
	cfg.LocalStore.QuotaBytes = getEnvAsInt64("LOCAL_STORE_QUOTA_BYTES", constants.DefaultLocalStoreQuotaBytes)

	cfg.Cache.PersistLimit = getEnvAsInt("CACHE_PERSIST_LIMIT", constants.DefaultCachePersistLimit)
	cfg.Cache.PersistFallbackLimit = getEnvAsInt("CACHE_PERSIST_FALLBACK_LIMIT", constants.DefaultCachePersistFallbackLimit)
	if cfg.Cache.PersistFallbackLimit > cfg.Cache.PersistLimit {
		log.Printf("Warning: CACHE_PERSIST_FALLBACK_LIMIT (%d) exceeds CACHE_PERSIST_LIMIT (%d). Using %d.\n",
			cfg.Cache.PersistFallbackLimit, cfg.Cache.PersistLimit, cfg.Cache.PersistLimit)
		cfg.Cache.PersistFallbackLimit = cfg.Cache.PersistLimit
	}

	cfg.Import.ChunkSize = clampChunkSize(getEnvAsInt("IMPORT_CHUNK_SIZE", constants.DefaultImportChunkSize))
	cfg.Import.RemoteReloadLimit = getEnvAsInt("REMOTE_RELOAD_LIMIT", constants.DefaultRemoteReloadLimit)
	cfg.Import.StableSyntheticIDs = getEnvAsBool("FEED_STABLE_SYNTHETIC_IDS", false)
	cfg.Import.FetchTimeout = time.Duration(getEnvAsInt("FEED_FETCH_TIMEOUT_SECONDS", 60)) * time.Second
	cfg.Import.SyncTimeout = time.Duration(getEnvAsInt("REMOTE_SYNC_TIMEOUT_SECONDS", 30)) * time.Second
	cfg.Import.TrackerMaxRuns = getEnvAsInt("IMPORT_TRACKER_MAX_RUNS", 100)

	return cfg, nil
}

func clampChunkSize(n int) int {
	switch {
	case n < 1:
		log.Printf("Warning: IMPORT_CHUNK_SIZE %d is not positive. Using default value: %d\n", n, constants.DefaultImportChunkSize)
		return constants.DefaultImportChunkSize
	case n > maxImportChunkSize:
		log.Printf("Warning: IMPORT_CHUNK_SIZE %d is too large. Using %d\n", n, maxImportChunkSize)
		return maxImportChunkSize
	default:
		return n
	}
}

// getEnvAsString читает переменную окружения как строку или возвращает значение по умолчанию
func getEnvAsString(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvAsInt логирует предупреждение, если значение есть, но не является числом
func getEnvAsInt(key string, defaultValue int) int {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueInt, err := strconv.Atoi(strings.TrimSpace(valueStr))
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as int: %v. Using default value: %d\n", key, valueStr, err, defaultValue)
		return defaultValue
	}
	return valueInt
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	value, err := strconv.ParseInt(strings.TrimSpace(valueStr), 10, 64)
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as int64: %v. Using default value: %d\n", key, valueStr, err, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valBool, err := strconv.ParseBool(strings.TrimSpace(valStr))
	if err != nil {
		log.Printf("Warning: Environment variable %s (value: %s) could not be parsed as bool: %v. Using default value: %t\n", key, valStr, err, defaultValue)
		return defaultValue
	}
	return valBool
}

// getEnvAsList - список через запятую, пустые элементы отбрасываются
func getEnvAsList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
