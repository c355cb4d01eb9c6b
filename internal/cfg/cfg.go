package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"bnpl-risk/internal/common"
	"bnpl-risk/internal/policy"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	APIPort        int
	MetricsPort    int
	DashboardPort  int
	AllowedOrigins []string
	RateLimit      float64
	RateBurst      int

	ModelPath    string
	SchemaPath   string
	ModelTimeout time.Duration
	// DriftBaselinePath enables drift monitoring when set.
	DriftBaselinePath string
	DriftWindow       int

	DataPath       string
	RecordFeatures bool

	LogLevel  string
	LogFormat string

	// Risk is the initial policy snapshot; admins change it at runtime.
	Risk policy.Settings
}

type ConfigFile struct {
	Server struct {
		APIPort        int      `yaml:"apiPort"`
		MetricsPort    int      `yaml:"metricsPort"`
		DashboardPort  int      `yaml:"dashboardPort"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
		RateLimit      float64  `yaml:"rateLimit"`
		RateBurst      int      `yaml:"rateBurst"`
	} `yaml:"server"`

	Model struct {
		Path          string `yaml:"path"`
		SchemaPath    string `yaml:"schemaPath"`
		Timeout       string `yaml:"timeout"`
		DriftBaseline string `yaml:"driftBaseline"`
		DriftWindow   int    `yaml:"driftWindow"`
	} `yaml:"model"`

	Risk struct {
		Threshold float64 `yaml:"threshold"`
		MinFICO   int     `yaml:"minFico"`
		MaxDTI    int     `yaml:"maxDti"`
	} `yaml:"risk"`

	System struct {
		DataPath       string `yaml:"dataPath"`
		RecordFeatures bool   `yaml:"recordFeatures"`
		LogLevel       string `yaml:"logLevel"`
		LogFormat      string `yaml:"logFormat"`
	} `yaml:"system"`
}

// Load reads an optional .env file, then CONFIG_FILE when set, with
// environment variables taking precedence over file values.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to read .env: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	timeout := time.Duration(common.DefaultModelTimeout) * time.Second
	if config.Model.Timeout != "" {
		timeout, err = time.ParseDuration(config.Model.Timeout)
		if err != nil {
			return Settings{}, common.ConfigError("model.timeout", "invalid duration %q", config.Model.Timeout)
		}
	}

	settings := Settings{
		APIPort:           getIntFromEnvOrConfig(common.EnvAPIPort, config.Server.APIPort, common.DefaultAPIPort),
		MetricsPort:       getIntFromEnvOrConfig(common.EnvMetricsPort, config.Server.MetricsPort, common.DefaultMetricsPort),
		DashboardPort:     getIntFromEnvOrConfig(common.EnvDashboardPort, config.Server.DashboardPort, common.DefaultDashboardPort),
		AllowedOrigins:    getOriginsFromEnvOrConfig(config.Server.AllowedOrigins),
		RateLimit:         getFloatFromEnvOrConfig(common.EnvRateLimit, config.Server.RateLimit, common.DefaultRateLimit),
		RateBurst:         getIntFromEnvOrConfig(common.EnvRateBurst, config.Server.RateBurst, common.DefaultRateBurst),
		ModelPath:         getEnvOrDefault(common.EnvModelPath, orDefault(config.Model.Path, common.DefaultModelPath)),
		SchemaPath:        getEnvOrDefault(common.EnvSchemaPath, config.Model.SchemaPath),
		ModelTimeout:      getDurationOrDefault(common.EnvModelTimeout, timeout),
		DriftBaselinePath: getEnvOrDefault(common.EnvDriftBaseline, config.Model.DriftBaseline),
		DriftWindow:       getIntFromEnvOrConfig(common.EnvDriftWindow, config.Model.DriftWindow, common.DefaultDriftWindow),
		DataPath:          getEnvOrDefault(common.EnvDataPath, orDefault(config.System.DataPath, common.DefaultDataPath)),
		RecordFeatures:    getBoolOrDefault(common.EnvRecordFeatures, config.System.RecordFeatures),
		LogLevel:          getEnvOrDefault(common.EnvLogLevel, orDefault(config.System.LogLevel, common.DefaultLogLevel)),
		LogFormat:         getEnvOrDefault(common.EnvLogFormat, orDefault(config.System.LogFormat, common.DefaultLogFormat)),
		Risk: policy.Settings{
			Threshold: getFloatFromEnvOrConfig(common.EnvRiskThreshold, config.Risk.Threshold, common.DefaultRiskThreshold),
			MinFICO:   getIntFromEnvOrConfig(common.EnvMinFICO, config.Risk.MinFICO, common.DefaultMinFICO),
			MaxDTI:    getIntFromEnvOrConfig(common.EnvMaxDTI, config.Risk.MaxDTI, common.DefaultMaxDTI),
		},
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		APIPort:           getIntOrDefault(common.EnvAPIPort, common.DefaultAPIPort),
		MetricsPort:       getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		DashboardPort:     getIntOrDefault(common.EnvDashboardPort, common.DefaultDashboardPort),
		AllowedOrigins:    getOriginsFromEnvOrConfig(nil),
		RateLimit:         getFloatOrDefault(common.EnvRateLimit, common.DefaultRateLimit),
		RateBurst:         getIntOrDefault(common.EnvRateBurst, common.DefaultRateBurst),
		ModelPath:         getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		SchemaPath:        os.Getenv(common.EnvSchemaPath), // optional, built-in schema otherwise
		ModelTimeout:      getDurationOrDefault(common.EnvModelTimeout, time.Duration(common.DefaultModelTimeout)*time.Second),
		DriftBaselinePath: os.Getenv(common.EnvDriftBaseline),
		DriftWindow:       getIntOrDefault(common.EnvDriftWindow, common.DefaultDriftWindow),
		DataPath:          getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		RecordFeatures:    getBoolOrDefault(common.EnvRecordFeatures, false),
		LogLevel:          getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:         getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		Risk: policy.Settings{
			Threshold: getFloatOrDefault(common.EnvRiskThreshold, common.DefaultRiskThreshold),
			MinFICO:   getIntOrDefault(common.EnvMinFICO, common.DefaultMinFICO),
			MaxDTI:    getIntOrDefault(common.EnvMaxDTI, common.DefaultMaxDTI),
		},
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// getDurationOrDefault accepts Go durations ("2s") and bare seconds ("2").
func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getOriginsFromEnvOrConfig(configOrigins []string) []string {
	if env := os.Getenv(common.EnvAllowedOrigins); env != "" {
		return splitOrDefault(env, nil)
	}
	if len(configOrigins) > 0 {
		return configOrigins
	}
	return append([]string(nil), common.DefaultAllowedOrigins...)
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getFloatOrDefault(key, defaultValue)
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	ports := []struct {
		field string
		port  int
	}{
		{"api_port", settings.APIPort},
		{"metrics_port", settings.MetricsPort},
		{"dashboard_port", settings.DashboardPort},
	}
	seen := make(map[int]string, len(ports))
	for _, p := range ports {
		if p.port < common.MinPort || p.port > common.MaxPort {
			return common.ConfigError(p.field, "must be between %d and %d, got %d", common.MinPort, common.MaxPort, p.port)
		}
		if other, dup := seen[p.port]; dup {
			return common.ConfigError(p.field, "port %d already used by %s", p.port, other)
		}
		seen[p.port] = p.field
	}

	if settings.RateLimit < 0 {
		return common.ConfigError("rate_limit", "cannot be negative, got %v", settings.RateLimit)
	}
	if settings.RateLimit > 0 && settings.RateBurst < 1 {
		return common.ConfigError("rate_burst", "must be at least 1 when rate limiting is on, got %d", settings.RateBurst)
	}

	if settings.ModelPath == "" {
		return common.ConfigError("model_path", "cannot be empty")
	}
	minTimeout := time.Duration(common.MinModelTimeoutSec) * time.Second
	maxTimeout := time.Duration(common.MaxModelTimeoutSec) * time.Second
	if settings.ModelTimeout < minTimeout || settings.ModelTimeout > maxTimeout {
		return common.ConfigError("model_timeout", "must be between %v and %v, got %v", minTimeout, maxTimeout, settings.ModelTimeout)
	}

	if settings.DriftBaselinePath != "" && settings.DriftWindow < common.MinDriftWindow {
		return common.ConfigError("drift_window", "must be at least %d, got %d", common.MinDriftWindow, settings.DriftWindow)
	}

	switch strings.ToLower(settings.LogFormat) {
	case "json", "console":
	default:
		return common.ConfigError("log_format", "must be json or console, got %q", settings.LogFormat)
	}

	for _, origin := range settings.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return common.ConfigError("allowed_origins", "origin %q must start with http:// or https://", origin)
		}
	}

	if err := settings.Risk.Validate(); err != nil {
		return err
	}

	return nil
}
