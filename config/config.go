package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"bountyvault/native/common"
)

type Config struct {
	DataDir        string   `toml:"DataDir"`
	RPCAddress     string   `toml:"RPCAddress"`
	MetricsAddress string   `toml:"MetricsAddress"`
	Environment    string   `toml:"Environment"`
	AdminAddress   string   `toml:"AdminAddress"`
	TokenAddress   string   `toml:"TokenAddress"`
	Whitelist      []string `toml:"Whitelist"`

	AbuseMaxOperations   uint32 `toml:"AbuseMaxOperations"`
	AbuseWindowSeconds   uint64 `toml:"AbuseWindowSeconds"`
	AbuseCooldownSeconds uint64 `toml:"AbuseCooldownSeconds"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./bountyvault-data"
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8080"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "local"
	}
	if cfg.Whitelist == nil {
		cfg.Whitelist = []string{}
	}
	defaults := common.DefaultAbuseConfig()
	if cfg.AbuseMaxOperations == 0 {
		cfg.AbuseMaxOperations = defaults.MaxOperations
	}
	if cfg.AbuseWindowSeconds == 0 {
		cfg.AbuseWindowSeconds = defaults.WindowSize
	}
	if cfg.AbuseCooldownSeconds == 0 {
		cfg.AbuseCooldownSeconds = defaults.CooldownPeriod
	}

	return cfg, nil
}

// AbuseConfig returns the configured anti-abuse limits.
func (c *Config) AbuseConfig() common.AbuseConfig {
	return common.AbuseConfig{
		MaxOperations:  c.AbuseMaxOperations,
		WindowSize:     c.AbuseWindowSeconds,
		CooldownPeriod: c.AbuseCooldownSeconds,
	}
}

// Admin parses the configured admin address.
func (c *Config) Admin() ([20]byte, error) {
	return ParseAddress(c.AdminAddress)
}

// Token parses the configured token contract address.
func (c *Config) Token() ([20]byte, error) {
	return ParseAddress(c.TokenAddress)
}

// WhitelistAddresses parses the configured whitelist entries.
func (c *Config) WhitelistAddresses() ([][20]byte, error) {
	addrs := make([][20]byte, 0, len(c.Whitelist))
	for _, entry := range c.Whitelist {
		addr, err := ParseAddress(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid whitelist entry %q: %w", entry, err)
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

// ParseAddress normalises and validates an address expressed as a hex string.
func ParseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return addr, fmt.Errorf("address required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != 40 {
		return addr, fmt.Errorf("address must be 20 bytes (got %d hex chars)", len(trimmed))
	}
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("decode address: %w", err)
	}
	copy(addr[:], decoded)
	return addr, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	defaults := common.DefaultAbuseConfig()
	cfg := &Config{
		DataDir:              "./bountyvault-data",
		RPCAddress:           ":8080",
		MetricsAddress:       ":9090",
		Environment:          "local",
		Whitelist:            []string{},
		AbuseMaxOperations:   defaults.MaxOperations,
		AbuseWindowSeconds:   defaults.WindowSize,
		AbuseCooldownSeconds: defaults.CooldownPeriod,
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
