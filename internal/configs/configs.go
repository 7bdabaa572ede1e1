/*
Package configs is responsible for loading and parsing the application's configuration settings.

It reads operating system environment variables (optionally seeded from a .env
file), covering the running environment, the diagnostic HTTP port, the broker
and collaborator endpoints, and the reconnect delay.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig contains all configuration parameters required for the application to run.
// All configuration values are loaded from environment variables.
type AppConfig struct {
	// General Settings
	Environment string
	Port        int

	// Realtime Transport Settings
	BrokerURL      string
	ReconnectDelay time.Duration

	// Collaborator API Settings
	APIBaseURL string
	APITimeout time.Duration

	// Security Settings
	AuthToken      string
	AllowedOrigins []string
}

// LoadConfig reads and parses the application configuration from environment variables.
// A .env file in the working directory is honored when present. Defaults are
// applied per item and type conversions are validated.
func LoadConfig() (*AppConfig, error) {
	// missing .env is fine; the environment may already be populated
	_ = godotenv.Load()

	cfg := &AppConfig{}

	// --- General Settings ---
	// Environment
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// Port
	portStr := os.Getenv("PORT")
	if portStr == "" {
		portStr = "8090"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT environment variable: %w", err)
	}
	cfg.Port = port

	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	// --- Realtime Transport Settings ---
	// BrokerURL
	cfg.BrokerURL = os.Getenv("BROKER_URL")
	if cfg.BrokerURL == "" {
		if cfg.Environment == "development" {
			cfg.BrokerURL = "ws://localhost:15674/ws"
		} else {
			return nil, fmt.Errorf("BROKER_URL environment variable is required in %s environment", cfg.Environment)
		}
	}

	// ReconnectDelay
	delayStr := os.Getenv("RECONNECT_DELAY_SECONDS")
	if delayStr == "" {
		delayStr = "5"
	}
	delaySec, err := strconv.Atoi(delayStr)
	if err != nil || delaySec < 1 {
		return nil, fmt.Errorf("invalid RECONNECT_DELAY_SECONDS environment variable: %q", delayStr)
	}
	cfg.ReconnectDelay = time.Duration(delaySec) * time.Second

	// --- Collaborator API Settings ---
	// APIBaseURL
	cfg.APIBaseURL = os.Getenv("API_BASE_URL")
	if cfg.APIBaseURL == "" {
		if cfg.Environment == "development" {
			cfg.APIBaseURL = "http://localhost:8080/api"
		} else {
			return nil, fmt.Errorf("API_BASE_URL environment variable is required in %s environment", cfg.Environment)
		}
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	// APITimeout
	timeoutStr := os.Getenv("API_TIMEOUT_SECONDS")
	if timeoutStr == "" {
		timeoutStr = "10"
	}
	timeoutSec, err := strconv.Atoi(timeoutStr)
	if err != nil || timeoutSec < 1 {
		return nil, fmt.Errorf("invalid API_TIMEOUT_SECONDS environment variable: %q", timeoutStr)
	}
	cfg.APITimeout = time.Duration(timeoutSec) * time.Second

	// --- Security Settings ---
	// AuthToken
	cfg.AuthToken = os.Getenv("AUTH_TOKEN")
	if cfg.AuthToken == "" && cfg.Environment != "development" {
		return nil, fmt.Errorf("AUTH_TOKEN environment variable is required in %s environment", cfg.Environment)
	}

	// AllowedOrigins
	originsStr := os.Getenv("ALLOWED_ORIGINS")
	if originsStr != "" {
		origins := strings.Split(originsStr, ",")
		for _, origin := range origins {
			trimmed := strings.TrimSpace(origin)
			if trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{}
	}

	return cfg, nil
}
