package storage

import (
	"fmt"

	"github.com/sonarboard/sonarboard/internal/models"
	"github.com/sonarboard/sonarboard/internal/perplexity"
)

// ConfigStore handles the durable dashboard config collection. Unlike the
// sequence collections this one is a single record.
type ConfigStore struct {
	store
}

// NewConfigStore creates a config store rooted at dataDir
func NewConfigStore(dataDir string) *ConfigStore {
	s := &ConfigStore{}
	s.init(dataDir, "config.json")
	return s
}

// Load returns the stored config. A missing file yields the defaults,
// never a failure; a missing API key stays an empty string.
func (s *ConfigStore) Load() (*models.DashboardConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := defaultDashboardConfig()
	if err := s.readFile(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// Save replaces the stored config
func (s *ConfigStore) Save(cfg *models.DashboardConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeFile(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

func defaultDashboardConfig() *models.DashboardConfig {
	return &models.DashboardConfig{
		APIKey:             "",
		BaseURL:            perplexity.DefaultBaseURL,
		DefaultModel:       perplexity.DefaultModel,
		DefaultMaxTokens:   perplexity.DefaultMaxTokens,
		DefaultTemperature: perplexity.DefaultTemperature,
	}
}
