package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings of the rotation scheduler service.
type Config struct {
	HTTPPort  int
	SQLiteDSN string

	// TickInterval is how often the transition worker sweeps running
	// sessions.
	TickInterval time.Duration

	// ArrivalThreshold is the tolerance before a scheduled patient is
	// flagged as late.
	ArrivalThreshold time.Duration
	// RotationWarnWindow is how long before a due hand-off the imminent
	// alert fires.
	RotationWarnWindow time.Duration

	// FlexibleSlotMinutes is the per-professional slot length in assessment
	// rooms.
	FlexibleSlotMinutes int
	// StandardSessionMinutes is the total session length in standard rooms.
	StandardSessionMinutes int
}

// fileConfig mirrors Config for the optional YAML configuration file.
// Durations are expressed as Go duration strings ("30s", "2m").
type fileConfig struct {
	HTTPPort               int    `yaml:"http_port"`
	SQLiteDSN              string `yaml:"sqlite_dsn"`
	TickInterval           string `yaml:"tick_interval"`
	ArrivalThreshold       string `yaml:"arrival_threshold"`
	RotationWarnWindow     string `yaml:"rotation_warn_window"`
	FlexibleSlotMinutes    int    `yaml:"flexible_slot_minutes"`
	StandardSessionMinutes int    `yaml:"standard_session_minutes"`
}

// Load builds the configuration from defaults, an optional YAML file named by
// ROTATIOND_CONFIG_FILE, and finally environment variable overrides, in that
// order of precedence.
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:               8080,
		SQLiteDSN:              "file:rotationd.db?_foreign_keys=on",
		TickInterval:           30 * time.Second,
		ArrivalThreshold:       10 * time.Minute,
		RotationWarnWindow:     2 * time.Minute,
		FlexibleSlotMinutes:    30,
		StandardSessionMinutes: 90,
	}

	invalid := make([]string, 0, 2)

	if path := strings.TrimSpace(os.Getenv("ROTATIOND_CONFIG_FILE")); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	if portValue := strings.TrimSpace(os.Getenv("ROTATIOND_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 {
			invalid = append(invalid, "ROTATIOND_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("ROTATIOND_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	applyDurationEnv(&cfg.TickInterval, "ROTATIOND_TICK_INTERVAL", &invalid)
	applyDurationEnv(&cfg.ArrivalThreshold, "ROTATIOND_ARRIVAL_THRESHOLD", &invalid)
	applyDurationEnv(&cfg.RotationWarnWindow, "ROTATIOND_ROTATION_WARN_WINDOW", &invalid)
	applyMinutesEnv(&cfg.FlexibleSlotMinutes, "ROTATIOND_FLEXIBLE_SLOT_MINUTES", &invalid)
	applyMinutesEnv(&cfg.StandardSessionMinutes, "ROTATIOND_STANDARD_SESSION_MINUTES", &invalid)

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("variáveis de ambiente com valores inválidos: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("arquivo de configuração não encontrado: %s", path)
		}
		return fmt.Errorf("falha ao ler o arquivo de configuração %s: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("arquivo de configuração inválido %s: %w", path, err)
	}

	if file.HTTPPort > 0 {
		cfg.HTTPPort = file.HTTPPort
	}
	if dsn := strings.TrimSpace(file.SQLiteDSN); dsn != "" {
		cfg.SQLiteDSN = dsn
	}
	if err := applyFileDuration(&cfg.TickInterval, file.TickInterval, path, "tick_interval"); err != nil {
		return err
	}
	if err := applyFileDuration(&cfg.ArrivalThreshold, file.ArrivalThreshold, path, "arrival_threshold"); err != nil {
		return err
	}
	if err := applyFileDuration(&cfg.RotationWarnWindow, file.RotationWarnWindow, path, "rotation_warn_window"); err != nil {
		return err
	}
	if file.FlexibleSlotMinutes > 0 {
		cfg.FlexibleSlotMinutes = file.FlexibleSlotMinutes
	}
	if file.StandardSessionMinutes > 0 {
		cfg.StandardSessionMinutes = file.StandardSessionMinutes
	}

	return nil
}

func applyFileDuration(target *time.Duration, raw, path, key string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fmt.Errorf("arquivo de configuração %s: valor inválido para %s", path, key)
	}
	*target = value
	return nil
}

func applyDurationEnv(target *time.Duration, key string, invalid *[]string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		*invalid = append(*invalid, key)
		return
	}
	*target = value
}

func applyMinutesEnv(target *int, key string, invalid *[]string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		*invalid = append(*invalid, key)
		return
	}
	*target = value
}
