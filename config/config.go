package config

import (
	"fmt"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Age sources for the vehicle age computation.
const (
	AgeFromRegistration = "registration"
	AgeFromModelYear    = "model_year"
)

// Result stores.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreNone     = "none"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	Store      string
	SQLitePath string

	SearchURL      string
	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	PagesToScrape  int
	ChromeBin      string

	CSVOutputPath  string
	ResultsCSVPath string
	ProgressFile   string

	PreprocessorPath string
	ModelPath        string
	ModelEndpoint    string
	TitleTablePath   string
	RedisAddr        string
	RedisKey         string
	FallbackStd      float64

	LowThreshold        float64
	HighThreshold       float64
	AgeSource           string
	ModelYearMonth      int
	TitleMatchThreshold float64
	TitleAliases        map[string]string
	OutlierIQRK         float64
	OutlierRatio        float64

	Workers          int
	PredictBatchSize int
	Debug            bool
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}
	return FromEnv()
}

// FromEnv builds a Config from the current process environment only.
func FromEnv() *Config {
	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "vfm"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "vfm123"),
		PostgresDB:       getEnv("POSTGRES_DB", "vfm_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		Store:      strings.ToLower(getEnv("STORE", StoreNone)),
		SQLitePath: getEnv("SQLITE_PATH", "./output/vfm.db"),

		SearchURL:      getEnv("SEARCH_URL", "https://www.yad2.co.il/vehicles/cars?priceOnly=1&Order=1"),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 3),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 1000),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		PagesToScrape:  getEnvInt("PAGES_TO_SCRAPE", 1),
		ChromeBin:      getEnv("CHROME_BIN", ""),

		CSVOutputPath:  getEnv("CSV_OUTPUT_PATH", "./output/raw_listings.csv"),
		ResultsCSVPath: getEnv("RESULTS_CSV_PATH", "./output/scored_listings.csv"),
		ProgressFile:   getEnv("PROGRESS_FILE", "progress.json"),

		PreprocessorPath: getEnv("PREPROCESSOR_PATH", "./artifacts/preprocessor.yaml"),
		ModelPath:        getEnv("MODEL_PATH", "./artifacts/model.json"),
		ModelEndpoint:    getEnv("MODEL_ENDPOINT", ""),
		TitleTablePath:   getEnv("TITLE_TABLE_PATH", "./artifacts/title_aggregates.csv"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		RedisKey:         getEnv("REDIS_KEY", "vfm:titles"),
		FallbackStd:      getEnvFloat("FALLBACK_STD", 0),

		LowThreshold:        getEnvFloat("VFM_LOW_THRESHOLD", -1.0),
		HighThreshold:       getEnvFloat("VFM_HIGH_THRESHOLD", 1.0),
		AgeSource:           strings.ToLower(getEnv("AGE_SOURCE", AgeFromRegistration)),
		ModelYearMonth:      getEnvInt("MODEL_YEAR_MONTH", 6),
		TitleMatchThreshold: getEnvFloat("TITLE_MATCH_THRESHOLD", 0),
		TitleAliases:        getEnvMap("TITLE_ALIASES"),
		OutlierIQRK:         getEnvFloat("OUTLIER_IQR_K", 1.5),
		OutlierRatio:        getEnvFloat("OUTLIER_RATIO", 10),

		Workers:          getEnvInt("WORKERS", runtime.NumCPU()),
		PredictBatchSize: getEnvInt("PREDICT_BATCH_SIZE", 256),
		Debug:            getEnvBool("LOG_DEBUG", false),
	}
}

// Validate checks the values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.LowThreshold > c.HighThreshold {
		return fmt.Errorf("config: low threshold %.3f is above high threshold %.3f",
			c.LowThreshold, c.HighThreshold)
	}
	switch c.AgeSource {
	case AgeFromRegistration, AgeFromModelYear:
	default:
		return fmt.Errorf("config: unknown AGE_SOURCE %q", c.AgeSource)
	}
	switch c.Store {
	case StorePostgres, StoreSQLite, StoreNone:
	default:
		return fmt.Errorf("config: unknown STORE %q", c.Store)
	}
	if c.ModelYearMonth < 1 || c.ModelYearMonth > 12 {
		return fmt.Errorf("config: MODEL_YEAR_MONTH must be 1-12, got %d", c.ModelYearMonth)
	}
	if c.TitleMatchThreshold < 0 || c.TitleMatchThreshold > 1 {
		return fmt.Errorf("config: TITLE_MATCH_THRESHOLD must be within [0,1], got %.3f", c.TitleMatchThreshold)
	}
	if c.OutlierRatio <= 1 {
		return fmt.Errorf("config: OUTLIER_RATIO must be > 1, got %.3f", c.OutlierRatio)
	}
	if c.FallbackStd < 0 {
		return fmt.Errorf("config: FALLBACK_STD must not be negative")
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}

// getEnvMap parses "variant=canonical;variant2=canonical2".
func getEnvMap(key string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(os.Getenv(key), ";") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out[k] = v
		}
	}
	return out
}
