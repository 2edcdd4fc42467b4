package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DataSourceConfig DataSourceConfig `json:"data_source"`
	BacktestConfig   BacktestConfig   `json:"backtest"`
	GeneticConfig    GeneticConfig    `json:"genetic"`
	RotationConfig   RotationConfig   `json:"rotation"`
	ResilienceConfig ResilienceConfig `json:"resilience"`
	LoggingConfig    LoggingConfig    `json:"logging"`
	ServerConfig     ServerConfig     `json:"server"`
	AuthConfig       AuthConfig       `json:"auth"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	RedisConfig      RedisConfig      `json:"redis"`
	VaultConfig      VaultConfig      `json:"vault"`
}

// DataSourceConfig holds historical market data source configuration
type DataSourceConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	CacheTTL       int    `json:"cache_ttl"` // Bar cache TTL in seconds
}

// BacktestConfig holds backtest engine defaults
type BacktestConfig struct {
	InitialCapital  float64 `json:"initial_capital"`
	CommissionPct   float64 `json:"commission_pct"`
	SlippagePct     float64 `json:"slippage_pct"`
	MinBars         int     `json:"min_bars"`          // Minimum rows required to run
	OOSSplit        float64 `json:"oos_split"`         // In-sample fraction for OOS validation
	MonteCarloRuns  int     `json:"monte_carlo_runs"`  // Resampling trials
	ResultsDir      string  `json:"results_dir"`       // JSON result documents
	PersistToDB     bool    `json:"persist_to_db"`     // Also write results to Postgres
	MaxStoredTrades int     `json:"max_stored_trades"` // Cap on persisted trade log
}

// GeneticConfig holds genetic algorithm defaults
type GeneticConfig struct {
	PopulationSize int     `json:"population_size"`
	Generations    int     `json:"generations"`
	MutationRate   float64 `json:"mutation_rate"`
	CrossoverRate  float64 `json:"crossover_rate"`
	EliteSize      int     `json:"elite_size"`
	TournamentSize int     `json:"tournament_size"`
	RandomSeed     int64   `json:"random_seed"` // 0 = time-seeded
}

// RotationConfig holds strategy rotator configuration
type RotationConfig struct {
	Enabled         bool   `json:"enabled"`
	IntervalSeconds int    `json:"interval_seconds"` // Auto-rotation scan interval
	Symbol          string `json:"symbol"`           // Market scanned by the background loop
	AssetClass      string `json:"asset_class"`
	Interval        string `json:"interval"`
	LookbackDays    int    `json:"lookback_days"`
}

// ResilienceConfig holds retry and circuit breaker defaults
type ResilienceConfig struct {
	MaxRetries         int     `json:"max_retries"`
	InitialDelayMs     int     `json:"initial_delay_ms"`
	BackoffFactor      float64 `json:"backoff_factor"`
	MaxDelayMs         int     `json:"max_delay_ms"`
	Jitter             bool    `json:"jitter"`
	FailureThreshold   int     `json:"failure_threshold"`
	RecoveryTimeoutSec int     `json:"recovery_timeout_sec"`
	HalfOpenTestCalls  int     `json:"half_open_test_calls"`
	RateLimitPerMinute int     `json:"rate_limit_per_minute"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ProductionMode  bool   `json:"production_mode"`
	ReadTimeout     int    `json:"read_timeout"`
	WriteTimeout    int    `json:"write_timeout"`
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	APIKeyHash          string        `json:"api_key_hash"` // bcrypt hash of the API key
	AccessTokenDuration time.Duration `json:"access_token_duration"`
}

type DatabaseConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int    `json:"max_conns"`
}

// RedisConfig holds Redis configuration for bar caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Data source config
	cfg.DataSourceConfig.BaseURL = getEnvOrDefault("DATA_BASE_URL", cfg.DataSourceConfig.BaseURL)
	if cfg.DataSourceConfig.BaseURL == "" {
		cfg.DataSourceConfig.BaseURL = "http://localhost:8081"
	}
	cfg.DataSourceConfig.APIKey = getEnvOrDefault("DATA_API_KEY", cfg.DataSourceConfig.APIKey)
	cfg.DataSourceConfig.TimeoutSeconds = getEnvIntOrDefault("DATA_TIMEOUT_SECONDS", 10)
	cfg.DataSourceConfig.CacheTTL = getEnvIntOrDefault("DATA_CACHE_TTL", 300)

	// Backtest config
	cfg.BacktestConfig.InitialCapital = getEnvFloatOrDefault("BACKTEST_INITIAL_CAPITAL", 10000.0)
	cfg.BacktestConfig.CommissionPct = getEnvFloatOrDefault("BACKTEST_COMMISSION_PCT", 0.001)
	cfg.BacktestConfig.SlippagePct = getEnvFloatOrDefault("BACKTEST_SLIPPAGE_PCT", 0.0005)
	cfg.BacktestConfig.MinBars = getEnvIntOrDefault("BACKTEST_MIN_BARS", 30)
	cfg.BacktestConfig.OOSSplit = getEnvFloatOrDefault("BACKTEST_OOS_SPLIT", 0.7)
	cfg.BacktestConfig.MonteCarloRuns = getEnvIntOrDefault("BACKTEST_MONTE_CARLO_RUNS", 500)
	cfg.BacktestConfig.ResultsDir = getEnvOrDefault("BACKTEST_RESULTS_DIR", "data/backtests")
	cfg.BacktestConfig.PersistToDB = getEnvOrDefault("BACKTEST_PERSIST_TO_DB", "false") == "true"
	cfg.BacktestConfig.MaxStoredTrades = getEnvIntOrDefault("BACKTEST_MAX_STORED_TRADES", 100)

	// Genetic algorithm config
	cfg.GeneticConfig.PopulationSize = getEnvIntOrDefault("GA_POPULATION_SIZE", 50)
	cfg.GeneticConfig.Generations = getEnvIntOrDefault("GA_GENERATIONS", 20)
	cfg.GeneticConfig.MutationRate = getEnvFloatOrDefault("GA_MUTATION_RATE", 0.1)
	cfg.GeneticConfig.CrossoverRate = getEnvFloatOrDefault("GA_CROSSOVER_RATE", 0.8)
	cfg.GeneticConfig.EliteSize = getEnvIntOrDefault("GA_ELITE_SIZE", 5)
	cfg.GeneticConfig.TournamentSize = getEnvIntOrDefault("GA_TOURNAMENT_SIZE", 3)
	if v := os.Getenv("GA_RANDOM_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.GeneticConfig.RandomSeed = seed
		}
	}

	// Rotation config
	cfg.RotationConfig.Enabled = getEnvOrDefault("ROTATION_ENABLED", "true") == "true"
	cfg.RotationConfig.IntervalSeconds = getEnvIntOrDefault("ROTATION_INTERVAL_SECONDS", 300)
	cfg.RotationConfig.Symbol = getEnvOrDefault("ROTATION_SYMBOL", cfg.RotationConfig.Symbol)
	cfg.RotationConfig.AssetClass = getEnvOrDefault("ROTATION_ASSET_CLASS", "equity")
	cfg.RotationConfig.Interval = getEnvOrDefault("ROTATION_INTERVAL", "1d")
	cfg.RotationConfig.LookbackDays = getEnvIntOrDefault("ROTATION_LOOKBACK_DAYS", 90)

	// Resilience config
	cfg.ResilienceConfig.MaxRetries = getEnvIntOrDefault("RESILIENCE_MAX_RETRIES", 3)
	cfg.ResilienceConfig.InitialDelayMs = getEnvIntOrDefault("RESILIENCE_INITIAL_DELAY_MS", 500)
	cfg.ResilienceConfig.BackoffFactor = getEnvFloatOrDefault("RESILIENCE_BACKOFF_FACTOR", 2.0)
	cfg.ResilienceConfig.MaxDelayMs = getEnvIntOrDefault("RESILIENCE_MAX_DELAY_MS", 30000)
	cfg.ResilienceConfig.Jitter = getEnvOrDefault("RESILIENCE_JITTER", "true") == "true"
	cfg.ResilienceConfig.FailureThreshold = getEnvIntOrDefault("RESILIENCE_FAILURE_THRESHOLD", 5)
	cfg.ResilienceConfig.RecoveryTimeoutSec = getEnvIntOrDefault("RESILIENCE_RECOVERY_TIMEOUT_SEC", 60)
	cfg.ResilienceConfig.HalfOpenTestCalls = getEnvIntOrDefault("RESILIENCE_HALF_OPEN_TEST_CALLS", 1)
	cfg.ResilienceConfig.RateLimitPerMinute = getEnvIntOrDefault("RESILIENCE_RATE_LIMIT_PER_MINUTE", 60)

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("SERVER_PRODUCTION", "false") == "true"
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Auth config - ALWAYS apply from environment
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", "false") == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.APIKeyHash = getEnvOrDefault("AUTH_API_KEY_HASH", cfg.AuthConfig.APIKeyHash)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", 15*time.Minute)

	// Database config
	cfg.DatabaseConfig.Enabled = getEnvOrDefault("DB_ENABLED", "false") == "true"
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", 5432)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", "postgres")
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Name = getEnvOrDefault("DB_NAME", "evotrading")
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSL_MODE", "disable")
	cfg.DatabaseConfig.MaxConns = getEnvIntOrDefault("DB_MAX_CONNS", 10)

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "evo-trading/credentials")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
