package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/vekaria04/hospital-management-system/pkg/offline"
)

// Offline store kinds accepted by OFFLINE_STORE.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
	StoreMemory = "memory"
)

// ClientConfig drives the kiosk-side commands (questions, submit, queue).
type ClientConfig struct {
	Env               string        `mapstructure:"ENV"`
	APIURL            string        `mapstructure:"INTAKE_API_URL"`
	APIToken          string        `mapstructure:"INTAKE_API_TOKEN"`
	OfflineStore      string        `mapstructure:"OFFLINE_STORE"`
	OfflineStorePath  string        `mapstructure:"OFFLINE_STORE_PATH"`
	SyncFailurePolicy string        `mapstructure:"SYNC_FAILURE_POLICY"`
	HTTPTimeout       time.Duration `mapstructure:"HTTP_TIMEOUT"`
	HealthInterval    time.Duration `mapstructure:"HEALTH_CHECK_INTERVAL"`
}

func LoadClient() (*ClientConfig, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("ENV", "development")
	v.SetDefault("INTAKE_API_URL", "http://localhost:5000")
	v.SetDefault("OFFLINE_STORE", StoreSQLite)
	v.SetDefault("OFFLINE_STORE_PATH", ".intake/offline.db")
	v.SetDefault("SYNC_FAILURE_POLICY", string(offline.RetainFailed))
	v.SetDefault("HTTP_TIMEOUT", "10s")
	v.SetDefault("HEALTH_CHECK_INTERVAL", "15s")

	for _, key := range []string{
		"ENV", "INTAKE_API_URL", "INTAKE_API_TOKEN", "OFFLINE_STORE", "OFFLINE_STORE_PATH",
		"SYNC_FAILURE_POLICY", "HTTP_TIMEOUT", "HEALTH_CHECK_INTERVAL",
	} {
		_ = v.BindEnv(key)
	}

	_ = v.ReadInConfig()

	cfg := &ClientConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal client config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ClientConfig) IsDev() bool {
	return c.Env == "development"
}

// Policy returns the parsed SYNC_FAILURE_POLICY.
func (c *ClientConfig) Policy() offline.FailurePolicy {
	p, err := offline.ParseFailurePolicy(c.SyncFailurePolicy)
	if err != nil {
		return offline.RetainFailed
	}
	return p
}

func (c *ClientConfig) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("INTAKE_API_URL is required")
	}
	switch c.OfflineStore {
	case StoreSQLite, StoreFile:
		if c.OfflineStorePath == "" {
			return fmt.Errorf("OFFLINE_STORE_PATH is required for store %q", c.OfflineStore)
		}
	case StoreMemory:
	default:
		return fmt.Errorf("OFFLINE_STORE must be %q, %q or %q, got %q", StoreSQLite, StoreFile, StoreMemory, c.OfflineStore)
	}
	if _, err := offline.ParseFailurePolicy(c.SyncFailurePolicy); err != nil {
		return err
	}
	return nil
}
