package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// AccountsConfig holds per-account overrides for a deployment that runs more
// than one bot/session out of a single config file (e.g. a multi-account
// bot harness).
type AccountsConfig struct {
	Accounts map[string]Config `yaml:"accounts"`
}

// Manager resolves the effective Config for a given account id: the global
// config with that account's overrides layered on top. A single-account
// deployment never needs this; it exists for harnesses running several
// LINE sessions from one process.
type Manager struct {
	global   *Config
	accounts map[string]Config
	mu       sync.RWMutex
}

// NewManager loads the global config plus an optional accounts overlay file.
// A missing accounts file is not an error: it just means no overrides.
func NewManager(globalPath, accountsPath string) (*Manager, error) {
	global, err := LoadConfig(globalPath)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(accountsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manager{global: global, accounts: make(map[string]Config)}, nil
		}
		return nil, err
	}
	defer f.Close()

	var ac AccountsConfig
	if err := yaml.NewDecoder(f).Decode(&ac); err != nil {
		return nil, err
	}
	return &Manager{global: global, accounts: ac.Accounts}, nil
}

// Get returns the effective config for accountID: the global config with
// that account's non-zero fields overlaid.
func (m *Manager) Get(accountID string) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	effective := *m.global

	override, ok := m.accounts[accountID]
	if !ok {
		return &effective
	}

	if override.Device.Kind != "" {
		effective.Device = override.Device
	}
	if override.Store.Path != "" || override.Store.Backend != "" {
		effective.Store = override.Store
	}
	if override.Endpoints.LegyHost != "" || override.Endpoints.GWHost != "" {
		effective.Endpoints = override.Endpoints
	}
	if override.Fetch.Mode != "" {
		effective.Fetch = override.Fetch
	}
	if override.Bot.RateLimit.MaxPerMinute != 0 {
		effective.Bot.RateLimit = override.Bot.RateLimit
	}
	if len(override.Bot.AdminUserIDs) > 0 {
		effective.Bot.AdminUserIDs = override.Bot.AdminUserIDs
	}

	return &effective
}
