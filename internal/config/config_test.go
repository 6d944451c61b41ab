package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"domovik/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
store:
  path: "sync.db"
remote:
  base_url: "https://api.example.com"
  household_id: "hh-42"
  token: "secret"
sync:
  settle_delay: 3s
cache:
  default_ttl: 10m
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Store.Path != "sync.db" {
		t.Errorf("expected store path sync.db, got %s", cfg.Store.Path)
	}
	if cfg.Remote.HouseholdID != "hh-42" {
		t.Errorf("expected household id hh-42, got %s", cfg.Remote.HouseholdID)
	}
	if cfg.Sync.SettleDelay.Std() != 3*time.Second {
		t.Errorf("expected settle delay 3s, got %v", cfg.Sync.SettleDelay.Std())
	}
	if cfg.Cache.DefaultTTL.Std() != 10*time.Minute {
		t.Errorf("expected default ttl 10m, got %v", cfg.Cache.DefaultTTL.Std())
	}
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("DOMOVIK_TOKEN", "env-token")

	yamlContent := `
store:
  path: "sync.db"
remote:
  base_url: "https://api.example.com"
  household_id: "hh-1"
  token: "${DOMOVIK_TOKEN}"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Remote.Token != "env-token" {
		t.Errorf("expected token from env, got %s", cfg.Remote.Token)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Store:  StoreConfig{Path: "sync.db"},
				Remote: RemoteConfig{BaseURL: "https://api.example.com", HouseholdID: "hh-1"},
			},
			wantErr: false,
		},
		{
			name: "missing store path",
			cfg: Config{
				Remote: RemoteConfig{BaseURL: "https://api.example.com", HouseholdID: "hh-1"},
			},
			wantErr: true,
		},
		{
			name: "missing remote base url",
			cfg: Config{
				Store:  StoreConfig{Path: "sync.db"},
				Remote: RemoteConfig{HouseholdID: "hh-1"},
			},
			wantErr: true,
		},
		{
			name: "auth without keys",
			cfg: Config{
				Store:  StoreConfig{Path: "sync.db"},
				Remote: RemoteConfig{BaseURL: "https://api.example.com", HouseholdID: "hh-1"},
				API:    APIConfig{Enabled: true, Auth: APIAuthConfig{Enabled: true}},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Sync.SettleDelay.Std() != models.DefaultSettleDelay {
		t.Errorf("expected default settle delay %v, got %v", models.DefaultSettleDelay, cfg.Sync.SettleDelay.Std())
	}
	if cfg.Sync.BatchSize != models.DefaultBatchSize {
		t.Errorf("expected default batch size %d, got %d", models.DefaultBatchSize, cfg.Sync.BatchSize)
	}
	if cfg.Sync.PollInterval.Std() != 2*time.Second {
		t.Errorf("expected default poll interval 2s, got %v", cfg.Sync.PollInterval.Std())
	}
	if cfg.Cache.Retention.Std() != models.DefaultCacheRetention {
		t.Errorf("expected default cache retention %v, got %v", models.DefaultCacheRetention, cfg.Cache.Retention.Std())
	}
	if cfg.API.Port != 8080 {
		t.Errorf("expected default API port 8080, got %d", cfg.API.Port)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header x-api-key, got %s", cfg.API.Auth.HeaderAPIKey)
	}
}
