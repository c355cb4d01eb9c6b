package common

// Environment variable keys
const (
	EnvConfigFile     = "CONFIG_FILE"
	EnvAPIPort        = "API_PORT"
	EnvMetricsPort    = "METRICS_PORT"
	EnvDashboardPort  = "DASHBOARD_PORT"
	EnvModelPath      = "MODEL_PATH"
	EnvSchemaPath     = "SCHEMA_PATH"
	EnvDataPath       = "DATA_PATH"
	EnvModelTimeout   = "MODEL_TIMEOUT"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
	EnvAllowedOrigins = "ALLOWED_ORIGINS"
	EnvRiskThreshold  = "RISK_THRESHOLD"
	EnvMinFICO        = "MIN_FICO"
	EnvMaxDTI         = "MAX_DTI"
	EnvRecordFeatures = "RECORD_FEATURES"
	EnvRateLimit      = "API_RATE_LIMIT"
	EnvRateBurst      = "API_RATE_BURST"
	EnvDriftBaseline  = "DRIFT_BASELINE"
	EnvDriftWindow    = "DRIFT_WINDOW"
)

// Configuration defaults
const (
	DefaultAPIPort       = 8000
	DefaultMetricsPort   = 9090
	DefaultDashboardPort = 8501
	DefaultModelPath     = "models/champion_model.json"
	DefaultDataPath      = "data"
	DefaultModelTimeout  = 5 // seconds
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultRateLimit     = 50.0 // requests per second per client, 0 disables
	DefaultRateBurst     = 100
	DefaultDriftWindow   = 1000
	DefaultRiskThreshold = 0.15
	DefaultMinFICO       = 600
	DefaultMaxDTI        = 40
)

// DefaultAllowedOrigins are the dashboard dev-server origins.
var DefaultAllowedOrigins = []string{
	"http://localhost:5173",
	"http://127.0.0.1:5173",
	"http://localhost:5174",
	"http://127.0.0.1:5174",
}

// Validation constants
const (
	MinPort            = 1024
	MaxPort            = 65535
	MaxFICO            = 850
	MaxDTILimit        = 100
	MinModelTimeoutSec = 1
	MaxModelTimeoutSec = 60
	MinDriftWindow     = 30
)
