package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	PostgresDSN string
	BusBrokers  []string

	TreasurySeed         float64
	DigestLookaheadHours int
	WorkerPollInterval   time.Duration

	EnableProposalClosedConsumer bool
	EnableDigestScheduler        bool
	EnableDigestConsumer         bool
}

// fileConfig is the optional YAML overlay read from CIVITAS_CONFIG.
// Environment variables win over file values.
type fileConfig struct {
	ServiceName  string   `yaml:"service_name"`
	HTTPPort     string   `yaml:"http_port"`
	PostgresDSN  string   `yaml:"postgres_dsn"`
	BusBrokers   []string `yaml:"bus_brokers"`
	TreasurySeed *float64 `yaml:"treasury_seed"`
}

func Load() (Config, error) {
	overlay, err := loadFileOverlay(os.Getenv("CIVITAS_CONFIG"))
	if err != nil {
		return Config{}, err
	}

	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = overlay.ServiceName
	}
	if service == "" {
		service = "civitas"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = overlay.HTTPPort
	}
	if port == "" {
		port = "8080"
	}

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		dsn = overlay.PostgresDSN
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("BUS_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) == 0 {
		brokers = overlay.BusBrokers
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	seed := envFloat("TREASURY_SEED", 0)
	if seed == 0 && overlay.TreasurySeed != nil {
		seed = *overlay.TreasurySeed
	}
	if seed == 0 {
		seed = 100000
	}

	return Config{
		ServiceName: service,
		HTTPPort:    port,
		PostgresDSN: dsn,
		BusBrokers:  brokers,

		TreasurySeed:         seed,
		DigestLookaheadHours: envInt("DIGEST_LOOKAHEAD_HOURS", 24),
		WorkerPollInterval:   envDuration("WORKER_POLL_INTERVAL", 2*time.Second),

		EnableProposalClosedConsumer: envBool("ENABLE_PROPOSAL_CLOSED_CONSUMER", true),
		EnableDigestScheduler:        envBool("ENABLE_DIGEST_SCHEDULER", true),
		EnableDigestConsumer:         envBool("ENABLE_DIGEST_CONSUMER", true),
	}, nil
}

func loadFileOverlay(path string) (fileConfig, error) {
	if strings.TrimSpace(path) == "" {
		return fileConfig{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	var overlay fileConfig
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fileConfig{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return overlay, nil
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envFloat(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
