// Package chains loads the preset registry of known public RPC endpoints,
// grouped by network. The registry is inert configuration data consumed by
// the capability evaluator and by TieredPool builders that want to bulk-load
// a free tier; it has no runtime effect of its own.
package chains

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// NetworkConfig describes one logical network and the endpoints known to
// serve it.
type NetworkConfig struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Status      string            `json:"status"`
	ChainID     uint64            `json:"chain_id"`
	RPCUrls     []string          `json:"rpc_urls"`
	WSUrls      []string          `json:"ws_urls"`
	Metadata    map[string]string `json:"metadata"`
}

// Config is the top-level registry document.
type Config struct {
	Networks []NetworkConfig `json:"networks"`
}

// DefaultConfigPath is where the registry is read from when no override is set.
func DefaultConfigPath() string {
	return filepath.Join("config", "networks.json")
}

// LoadConfig loads the registry from CHAINS_CONFIG_JSON (inline), then
// CHAINS_CONFIG_PATH (file path override), then DefaultConfigPath().
func LoadConfig() (*Config, error) {
	if raw := strings.TrimSpace(os.Getenv("CHAINS_CONFIG_JSON")); raw != "" {
		return LoadConfigFromBytes([]byte(raw))
	}
	if path := strings.TrimSpace(os.Getenv("CHAINS_CONFIG_PATH")); path != "" {
		return LoadConfigFromPath(path)
	}
	return LoadConfigFromPath(DefaultConfigPath())
}

func LoadConfigFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read networks config: %w", err)
	}
	return LoadConfigFromBytes(data)
}

func LoadConfigFromBytes(data []byte) (*Config, error) {
	if len(data) == 0 {
		return nil, errors.New("networks config is empty")
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse networks config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c == nil || len(c.Networks) == 0 {
		return errors.New("no networks configured")
	}
	seen := make(map[string]bool, len(c.Networks))
	for _, network := range c.Networks {
		if err := network.Validate(); err != nil {
			return err
		}
		if seen[network.ID] {
			return fmt.Errorf("duplicate network id %q", network.ID)
		}
		seen[network.ID] = true
	}
	return nil
}

func (c *Config) GetNetwork(id string) (*NetworkConfig, bool) {
	if c == nil {
		return nil, false
	}
	for i := range c.Networks {
		if c.Networks[i].ID == id {
			return &c.Networks[i], true
		}
	}
	return nil, false
}

// ActiveNetworks returns networks whose status is empty or "active".
func (c *Config) ActiveNetworks() []NetworkConfig {
	if c == nil {
		return nil
	}
	var out []NetworkConfig
	for _, network := range c.Networks {
		if network.Status == "" || strings.EqualFold(network.Status, "active") {
			out = append(out, network)
		}
	}
	return out
}

func (n NetworkConfig) Validate() error {
	if strings.TrimSpace(n.ID) == "" {
		return errors.New("network id is required")
	}
	if len(n.RPCUrls) == 0 {
		return fmt.Errorf("network %s must have at least one rpc_url", n.ID)
	}
	return nil
}

func (n NetworkConfig) Meta(key string) string {
	if n.Metadata == nil {
		return ""
	}
	return strings.TrimSpace(n.Metadata[key])
}
