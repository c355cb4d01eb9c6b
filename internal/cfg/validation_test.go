package cfg

import (
	"errors"
	"testing"
	"time"

	"bnpl-risk/internal/common"
	"bnpl-risk/internal/policy"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	return &Settings{
		APIPort:        8000,
		MetricsPort:    9090,
		DashboardPort:  8501,
		AllowedOrigins: []string{"http://localhost:5173"},
		ModelPath:      "models/champion_model.json",
		ModelTimeout:   5 * time.Second,
		DataPath:       "data",
		LogLevel:       "info",
		LogFormat:      "json",
		Risk:           policy.DefaultSettings(),
	}
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	if err := validateSettings(createValidSettings()); err != nil {
		t.Errorf("Expected valid settings to pass validation, got error: %v", err)
	}
}

func TestValidateSettings_Ports(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(s *Settings)
		field   string
		wantErr bool
	}{
		{"privileged api port", func(s *Settings) { s.APIPort = 80 }, "api_port", true},
		{"minimum valid", func(s *Settings) { s.APIPort = 1024 }, "", false},
		{"maximum valid", func(s *Settings) { s.MetricsPort = 65535 }, "", false},
		{"metrics port too high", func(s *Settings) { s.MetricsPort = 70000 }, "metrics_port", true},
		{"dashboard port zero", func(s *Settings) { s.DashboardPort = 0 }, "dashboard_port", true},
		{"api and metrics collide", func(s *Settings) { s.MetricsPort = s.APIPort }, "metrics_port", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			tc.mutate(settings)

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Fatal("Expected error for invalid port")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("Expected no error, got: %v", err)
			}
			if tc.wantErr && common.Field(err) != tc.field {
				t.Errorf("Expected field %s, got %s", tc.field, common.Field(err))
			}
		})
	}
}

func TestValidateSettings_ModelTimeout(t *testing.T) {
	testCases := []struct {
		name    string
		timeout time.Duration
		wantErr bool
	}{
		{"too short", 500 * time.Millisecond, true},
		{"minimum valid", time.Second, false},
		{"normal", 5 * time.Second, false},
		{"maximum valid", time.Minute, false},
		{"too long", 2 * time.Minute, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.ModelTimeout = tc.timeout

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid model timeout")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_EmptyModelPath(t *testing.T) {
	settings := createValidSettings()
	settings.ModelPath = ""

	if err := validateSettings(settings); err == nil {
		t.Error("Expected error for empty model path")
	}
}

func TestValidateSettings_RateLimit(t *testing.T) {
	testCases := []struct {
		name    string
		limit   float64
		burst   int
		wantErr bool
	}{
		{"disabled", 0, 0, false},
		{"enabled", 50, 100, false},
		{"negative limit", -1, 10, true},
		{"zero burst", 10, 0, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.RateLimit = tc.limit
			settings.RateBurst = tc.burst
			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_LogFormat(t *testing.T) {
	for _, format := range []string{"json", "console", "CONSOLE"} {
		settings := createValidSettings()
		settings.LogFormat = format
		if err := validateSettings(settings); err != nil {
			t.Errorf("Expected log format %q to be valid, got: %v", format, err)
		}
	}

	settings := createValidSettings()
	settings.LogFormat = "xml"
	if err := validateSettings(settings); err == nil {
		t.Error("Expected error for unknown log format")
	}
}

func TestValidateSettings_AllowedOrigins(t *testing.T) {
	testCases := []struct {
		name    string
		origins []string
		wantErr bool
	}{
		{"none", nil, false},
		{"wildcard", []string{"*"}, false},
		{"https", []string{"https://risk.example.com"}, false},
		{"missing scheme", []string{"localhost:5173"}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.AllowedOrigins = tc.origins

			err := validateSettings(settings)
			if tc.wantErr && err == nil {
				t.Error("Expected error for invalid origin")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestValidateSettings_RiskSettings(t *testing.T) {
	testCases := []struct {
		name    string
		risk    policy.Settings
		field   string
		wantErr bool
	}{
		{"defaults", policy.DefaultSettings(), "", false},
		{"zero threshold", policy.Settings{Threshold: 0, MinFICO: 600, MaxDTI: 40}, "", false},
		{"threshold above one", policy.Settings{Threshold: 1.2, MinFICO: 600, MaxDTI: 40}, "threshold", true},
		{"fico above scale", policy.Settings{Threshold: 0.15, MinFICO: 900, MaxDTI: 40}, "min_fico", true},
		{"negative dti", policy.Settings{Threshold: 0.15, MinFICO: 600, MaxDTI: -1}, "max_dti", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			settings := createValidSettings()
			settings.Risk = tc.risk

			err := validateSettings(settings)
			if !tc.wantErr {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if !errors.Is(err, common.ErrConfig) {
				t.Fatalf("Expected ErrConfig, got: %v", err)
			}
			if common.Field(err) != tc.field {
				t.Errorf("Expected field %s, got %s", tc.field, common.Field(err))
			}
		})
	}
}

func TestGetDurationOrDefault(t *testing.T) {
	testCases := []struct {
		value string
		want  time.Duration
	}{
		{"", 7 * time.Second},
		{"250ms", 250 * time.Millisecond},
		{"3", 3 * time.Second},
		{"1.5", 1500 * time.Millisecond},
		{"garbage", 7 * time.Second},
	}

	for _, tc := range testCases {
		t.Setenv("TEST_DURATION", tc.value)
		if got := getDurationOrDefault("TEST_DURATION", 7*time.Second); got != tc.want {
			t.Errorf("getDurationOrDefault(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}
