package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the gitbridge server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Discord  DiscordConfig
	GitHub   GitHubConfig
	Sync     SyncConfig
}

type ServerConfig struct {
	Port    int
	Env     string
	BaseURL string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type DiscordConfig struct {
	BotToken string
	BaseURL  string
	Timeout  time.Duration
}

type GitHubConfig struct {
	BaseURL       string
	OAuthBaseURL  string
	ClientID      string
	ClientSecret  string
	DispatchToken string
	WorkflowOwner string
	WorkflowRepo  string
	WorkflowFile  string
	WorkflowRef   string
	Timeout       time.Duration
}

type SyncConfig struct {
	Cooldown     time.Duration
	LinkTimeout  time.Duration
	PollInterval time.Duration
	SessionTTL   time.Duration
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:    envInt("GITBRIDGE_PORT", 8080),
			Env:     envString("GITBRIDGE_ENV", "development"),
			BaseURL: envString("GITBRIDGE_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Discord: DiscordConfig{
			BotToken: os.Getenv("DISCORD_BOT_TOKEN"),
			BaseURL:  envString("DISCORD_API_BASE_URL", "https://discord.com/api/v10"),
			Timeout:  envDuration("DISCORD_API_TIMEOUT", 15*time.Second),
		},
		GitHub: GitHubConfig{
			BaseURL:       envString("GITHUB_API_BASE_URL", "https://api.github.com"),
			OAuthBaseURL:  envString("GITHUB_OAUTH_BASE_URL", "https://github.com"),
			ClientID:      os.Getenv("GITHUB_CLIENT_ID"),
			ClientSecret:  os.Getenv("GITHUB_CLIENT_SECRET"),
			DispatchToken: os.Getenv("GITHUB_DISPATCH_TOKEN"),
			WorkflowOwner: os.Getenv("WORKFLOW_OWNER"),
			WorkflowRepo:  os.Getenv("WORKFLOW_REPO"),
			WorkflowFile:  envString("WORKFLOW_FILE", "contribution_pipeline.yml"),
			WorkflowRef:   envString("WORKFLOW_REF", "main"),
			Timeout:       envDuration("GITHUB_API_TIMEOUT", 20*time.Second),
		},
		Sync: SyncConfig{
			Cooldown:     envDuration("SYNC_COOLDOWN", 12*time.Hour),
			LinkTimeout:  envDuration("LINK_TIMEOUT", 5*time.Minute),
			PollInterval: envDuration("LINK_POLL_INTERVAL", time.Second),
			SessionTTL:   envDuration("LINK_SESSION_TTL", 10*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Discord.BotToken == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}

	if c.GitHub.ClientID == "" {
		return fmt.Errorf("GITHUB_CLIENT_ID is required")
	}
	if c.GitHub.ClientSecret == "" {
		return fmt.Errorf("GITHUB_CLIENT_SECRET is required")
	}
	if c.GitHub.DispatchToken == "" {
		return fmt.Errorf("GITHUB_DISPATCH_TOKEN is required")
	}
	if c.GitHub.WorkflowOwner == "" {
		return fmt.Errorf("WORKFLOW_OWNER is required")
	}
	if c.GitHub.WorkflowRepo == "" {
		return fmt.Errorf("WORKFLOW_REPO is required")
	}

	if !strings.HasPrefix(c.Server.BaseURL, "http://") && !strings.HasPrefix(c.Server.BaseURL, "https://") {
		return fmt.Errorf("GITBRIDGE_BASE_URL must start with http:// or https://, got %q", c.Server.BaseURL)
	}

	if c.Sync.Cooldown <= 0 {
		return fmt.Errorf("SYNC_COOLDOWN must be positive, got %s", c.Sync.Cooldown)
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("LINK_POLL_INTERVAL must be positive, got %s", c.Sync.PollInterval)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
