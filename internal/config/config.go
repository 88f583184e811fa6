// Package config builds the explicit configuration value object consumed by
// the rest of the program. Environment variables are read here, once, at the
// edge; verification and resolution logic never perform ambient lookups.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/gatewright/entitled/pkg/entitlement"
)

// Config is the full recognized option surface.
type Config struct {
	// DataDir holds the local cache and, on the issuing side, the
	// issued-token database.
	DataDir string

	// LicenseSecret is the shared secret for license tokens. Required to
	// verify licenses; holding it also allows minting them.
	LicenseSecret string

	// EntitlementPrivateKey signs entitlement tokens (issuing side only).
	EntitlementPrivateKey string

	// EntitlementPublicKey verifies entitlement tokens.
	EntitlementPublicKey string

	// InstallChannel is the distribution mode: core, pro, or auto.
	InstallChannel string

	// AllowCoreChannelProUpgrade permits a core-channel install to honor a
	// valid pro token. Defaults to true.
	AllowCoreChannelProUpgrade bool

	// OfflineGraceHours bounds how long an expired pro entitlement is still
	// honored offline. Defaults to 72; an explicit 0 disables the window.
	OfflineGraceHours int

	LogLevel  string
	LogFormat string
}

// Load reads configuration from the environment, with a .env file as an
// optional source for development setups.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:                    strings.TrimSpace(os.Getenv("ENTITLED_DATA_DIR")),
		LicenseSecret:              os.Getenv("ENTITLED_LICENSE_SECRET"),
		EntitlementPrivateKey:      os.Getenv("ENTITLED_PRIVATE_KEY"),
		EntitlementPublicKey:       os.Getenv("ENTITLED_PUBLIC_KEY"),
		InstallChannel:             strings.TrimSpace(os.Getenv("ENTITLED_INSTALL_CHANNEL")),
		AllowCoreChannelProUpgrade: envBool("ENTITLED_ALLOW_PRO_ON_CORE", true),
		OfflineGraceHours:          envInt("ENTITLED_OFFLINE_GRACE_HOURS", 72),
		LogLevel:                   envDefault("ENTITLED_LOG_LEVEL", "info"),
		LogFormat:                  envDefault("ENTITLED_LOG_FORMAT", "auto"),
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory for default data dir: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".entitled")
	}

	switch cfg.InstallChannel {
	case "", string(entitlement.ChannelAuto):
		cfg.InstallChannel = string(entitlement.ChannelAuto)
	case string(entitlement.ChannelCore), string(entitlement.ChannelPro):
	default:
		return nil, fmt.Errorf("invalid ENTITLED_INSTALL_CHANNEL %q: want core, pro, or auto", cfg.InstallChannel)
	}
	if cfg.OfflineGraceHours < 0 {
		return nil, fmt.Errorf("ENTITLED_OFFLINE_GRACE_HOURS must not be negative")
	}

	return cfg, nil
}

// ResolverConfig maps the loaded options onto the resolver policy.
func (c *Config) ResolverConfig() entitlement.ResolverConfig {
	return entitlement.ResolverConfig{
		InstallChannel:             entitlement.Channel(c.InstallChannel),
		AllowCoreChannelProUpgrade: c.AllowCoreChannelProUpgrade,
		OfflineGrace:               time.Duration(c.OfflineGraceHours) * time.Hour,
	}
}

// KeyMaterial maps the loaded options onto the client verification keys.
func (c *Config) KeyMaterial() entitlement.KeyMaterial {
	return entitlement.KeyMaterial{
		PublicKey:     c.EntitlementPublicKey,
		LicenseSecret: c.LicenseSecret,
	}
}

func envDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}
