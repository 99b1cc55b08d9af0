package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is read before the process environment when it exists.
const DefaultEnvFile = "config/.env"

type Config struct {
	Server   ServerConfig
	Postgres PostgresConfig
	Hashing  HashingConfig
	Auth     AuthConfig
	Log      LogConfig
}

type ServerConfig struct {
	Addr             string
	AllowedOrigins   []string
	LoginRatePerSec  float64
	LoginRateBurst   int
	ShutdownTimeout  time.Duration
	TokenSweepPeriod time.Duration
}

type PostgresConfig struct {
	DatabaseURL string
	Host        string
	Port        string
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
}

type HashingConfig struct {
	Pepper   string
	MemCost  uint32
	TimeCost uint32
	Lanes    uint8
	Workers  int
}

type AuthConfig struct {
	CreateRoot    bool
	RootPassword  string
	MaxRefreshTTL time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads ENV_FILE (default config/.env) if present and builds a Config from the environment.
// Variables already set in the environment take precedence over the file.
func Load() (Config, error) {
	envFile := getenv("ENV_FILE", DefaultEnvFile)
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from lookup without touching files.
func FromEnv(lookup func(string) string) (Config, error) {
	e := env{lookup: lookup}

	cfg := Config{
		Server: ServerConfig{
			Addr:             e.str("IP_WITH_PORT", "0.0.0.0:8080"),
			AllowedOrigins:   splitList(e.str("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
			LoginRatePerSec:  e.float("LOGIN_RATE_PER_SEC", 1),
			LoginRateBurst:   e.int("LOGIN_RATE_BURST", 5),
			ShutdownTimeout:  e.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
			TokenSweepPeriod: e.duration("TOKEN_SWEEP_INTERVAL", time.Hour),
		},
		Postgres: PostgresConfig{
			DatabaseURL: e.str("DATABASE_URL", ""),
			Host:        e.str("PGHOST", "localhost"),
			Port:        e.str("PGPORT", "5432"),
			User:        e.str("PGUSER", ""),
			Password:    e.str("PGPASSWORD", ""),
			Database:    e.str("PGDATABASE", ""),
			SSLMode:     e.str("PGSSLMODE", "disable"),
			MaxConns:    int32(e.uint("PGMAXCONNS", 0, 31)),
		},
		Hashing: HashingConfig{
			Pepper:   e.str("PASSWORD_PEPPER", ""),
			MemCost:  uint32(e.uint("MEM_COST", 64*1024, 32)),
			TimeCost: uint32(e.uint("TIME_COST", 3, 32)),
			Lanes:    uint8(e.uint("LANES", 1, 8)),
			Workers:  e.int("HASH_WORKERS", 0),
		},
		Auth: AuthConfig{
			CreateRoot:    e.bool("CREATE_ROOT", false),
			RootPassword:  e.str("ROOT_PASSWORD", "admin"),
			MaxRefreshTTL: time.Duration(e.uint("MAX_REFRESH_SECONDS", 30*24*3600, 32)) * time.Second,
		},
		Log: LogConfig{
			Level:  e.str("LOG_LEVEL", "info"),
			Format: e.str("LOG_FORMAT", "json"),
		},
	}
	if len(e.errs) > 0 {
		return Config{}, errors.Join(e.errs...)
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Hashing.Pepper == "" {
		errs = append(errs, errors.New("PASSWORD_PEPPER is required"))
	}
	if c.Hashing.TimeCost < 1 {
		errs = append(errs, errors.New("TIME_COST must be at least 1"))
	}
	if c.Hashing.Lanes < 1 {
		errs = append(errs, errors.New("LANES must be at least 1"))
	}
	if c.Hashing.MemCost < 8*uint32(c.Hashing.Lanes) {
		errs = append(errs, errors.New("MEM_COST must be at least 8 KiB per lane"))
	}
	if c.Auth.MaxRefreshTTL <= 0 {
		errs = append(errs, errors.New("MAX_REFRESH_SECONDS must be positive"))
	}
	if c.Auth.CreateRoot && c.Auth.RootPassword == "" {
		errs = append(errs, errors.New("ROOT_PASSWORD is required when CREATE_ROOT is set"))
	}
	if c.Server.LoginRatePerSec <= 0 || c.Server.LoginRateBurst < 1 {
		errs = append(errs, errors.New("LOGIN_RATE_PER_SEC and LOGIN_RATE_BURST must be positive"))
	}
	return errors.Join(errs...)
}

type env struct {
	lookup func(string) string
	errs   []error
}

func (e *env) str(key, fallback string) string {
	if val := strings.TrimSpace(e.lookup(key)); val != "" {
		return val
	}
	return fallback
}

func (e *env) int(key string, fallback int) int {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid non-negative integer %q", key, raw))
		return fallback
	}
	return v
}

// uint parses an unsigned integer that must fit in bits.
func (e *env) uint(key string, fallback uint64, bits int) uint64 {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, bits)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer in [0, %d]", key, raw, uint64(1)<<bits-1))
		return fallback
	}
	return v
}

func (e *env) float(key string, fallback float64) float64 {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid number %q", key, raw))
		return fallback
	}
	return v
}

func (e *env) bool(key string, fallback bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid boolean %q", key, raw))
		return fallback
	}
	return v
}

func (e *env) duration(key string, fallback time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: invalid duration %q", key, raw))
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
