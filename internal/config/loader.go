package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers accepted by DAYBOOK_STORE_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

const defaultSQLiteDSN = "file:daybook.db?_pragma=foreign_keys(1)"

// Config captures the settings of the daybook service.
type Config struct {
	HTTPPort      int           `yaml:"http_port"`
	StoreDriver   string        `yaml:"store_driver"`
	DatabaseDSN   string        `yaml:"database_dsn"`
	PublicBaseURL string        `yaml:"public_base_url"`
	Timezone      string        `yaml:"timezone"`
	LogLevel      string        `yaml:"log_level"`
	SessionTTL    time.Duration `yaml:"session_ttl"`

	// Location is resolved from Timezone.
	Location *time.Location `yaml:"-"`
}

// Default returns the configuration used before any source is applied.
func Default() Config {
	return Config{
		HTTPPort:    8080,
		StoreDriver: DriverSQLite,
		Timezone:    "UTC",
		LogLevel:    "info",
		SessionTTL:  720 * time.Hour,
	}
}

// Load builds the configuration from, in increasing precedence, the YAML
// file named by DAYBOOK_CONFIG_FILE, a .env file in the working directory and
// the process environment. Variables already set in the environment win over
// .env entries.
//
// Every missing or invalid value is collected so operators see all problems
// at once.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("read .env: %w", err)
	}

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("DAYBOOK_CONFIG_FILE")); path != "" {
		if err := readFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	missing := make([]string, 0, 2)
	invalid := make([]string, 0, 4)

	if portValue := strings.TrimSpace(os.Getenv("DAYBOOK_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil {
			invalid = append(invalid, "DAYBOOK_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		invalid = appendOnce(invalid, "DAYBOOK_HTTP_PORT")
	}

	if driver := strings.TrimSpace(os.Getenv("DAYBOOK_STORE_DRIVER")); driver != "" {
		cfg.StoreDriver = strings.ToLower(driver)
	}
	switch cfg.StoreDriver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		invalid = append(invalid, "DAYBOOK_STORE_DRIVER")
	}

	if dsn := strings.TrimSpace(os.Getenv("DAYBOOK_DATABASE_DSN")); dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if cfg.DatabaseDSN == "" {
		switch cfg.StoreDriver {
		case DriverSQLite:
			cfg.DatabaseDSN = defaultSQLiteDSN
		case DriverPostgres:
			missing = append(missing, "DAYBOOK_DATABASE_DSN")
		}
	}

	if base := strings.TrimSpace(os.Getenv("DAYBOOK_PUBLIC_BASE_URL")); base != "" {
		cfg.PublicBaseURL = base
	}
	cfg.PublicBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicBaseURL), "/")
	if cfg.PublicBaseURL == "" {
		missing = append(missing, "DAYBOOK_PUBLIC_BASE_URL")
	} else if !validBaseURL(cfg.PublicBaseURL) {
		invalid = append(invalid, "DAYBOOK_PUBLIC_BASE_URL")
	}

	if tz := strings.TrimSpace(os.Getenv("DAYBOOK_TIMEZONE")); tz != "" {
		cfg.Timezone = tz
	}
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		invalid = append(invalid, "DAYBOOK_TIMEZONE")
	} else {
		cfg.Location = location
	}

	if level := strings.TrimSpace(os.Getenv("DAYBOOK_LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	if ttlValue := strings.TrimSpace(os.Getenv("DAYBOOK_SESSION_TTL")); ttlValue != "" {
		ttl, err := time.ParseDuration(ttlValue)
		if err != nil {
			invalid = append(invalid, "DAYBOOK_SESSION_TTL")
		} else {
			cfg.SessionTTL = ttl
		}
	}
	if cfg.SessionTTL <= 0 {
		invalid = appendOnce(invalid, "DAYBOOK_SESSION_TTL")
	}

	var problems []string
	if len(missing) > 0 {
		problems = append(problems, "missing required settings: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		problems = append(problems, "invalid settings: "+strings.Join(invalid, ", "))
	}
	if len(problems) > 0 {
		return Config{}, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func validBaseURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func appendOnce(values []string, value string) []string {
	if slices.Contains(values, value) {
		return values
	}
	return append(values, value)
}
