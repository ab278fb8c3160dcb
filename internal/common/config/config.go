// Package config provides configuration management for Ploinky.
// It supports loading configuration from environment variables, a
// config file, and built-in defaults.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/OutfinityResearch/ploinky-sub006/internal/common/logger"
)

// Config holds all configuration sections for the router and agent runtime.
type Config struct {
	Router   RouterConfig          `mapstructure:"router"`
	Agents   map[string]AgentRoute `mapstructure:"agents"`
	Auth     AuthConfig            `mapstructure:"auth"`
	TaskPoll TaskPollConfig        `mapstructure:"taskPoll"`
	Queue    QueueConfig           `mapstructure:"queue"`
	Logging  logger.Config         `mapstructure:"logging"`
}

// RouterConfig holds HTTP server configuration for the Routing Server.
type RouterConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	ReadTimeout        int    `mapstructure:"readTimeout"`        // seconds
	WriteTimeout       int    `mapstructure:"writeTimeout"`        // seconds
	BodyLimitBytes     int64  `mapstructure:"bodyLimitBytes"`      // resolves Open Question 2
	RateLimitPerSecond int    `mapstructure:"rateLimitPerSecond"` // token-bucket size/refill rate; <= 0 disables it

	// SessionCookieMaxAgeSeconds is the Max-Age of the session-affinity
	// cookie. -1 (the default) means "unset, use the built-in default
	// lifetime"; 0 means the cookie expires immediately, honored exactly
	// (resolves Open Question 3).
	SessionCookieMaxAgeSeconds int `mapstructure:"sessionCookieMaxAgeSeconds"`
}

// AgentRoute is the immutable per-agent route record (spec §3 "Agent Route").
type AgentRoute struct {
	AgentName string            `mapstructure:"agentName"`
	HostPort  int               `mapstructure:"hostPort"`
	Image     string            `mapstructure:"image"`
	Mounts    []string          `mapstructure:"mounts"`
	Env       map[string]string `mapstructure:"env"`
}

// AuthConfig holds Agent Token Service (C4) configuration.
type AuthConfig struct {
	ClientID             string `mapstructure:"clientId"`
	ClientSecret         string `mapstructure:"clientSecret"`
	CredentialsFile      string `mapstructure:"credentialsFile"`
	JWTSecret            string `mapstructure:"jwtSecret"`
	TokenDurationSeconds int    `mapstructure:"tokenDurationSeconds"`
}

// TaskPollConfig holds the MCP client's task-polling configuration.
type TaskPollConfig struct {
	IntervalMs int `mapstructure:"intervalMs"`
}

// QueueConfig holds Task Queue (C5) configuration.
type QueueConfig struct {
	MaxConcurrent int    `mapstructure:"maxConcurrent"`
	Workspace     string `mapstructure:"workspace"`
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("router.host", "0.0.0.0")
	v.SetDefault("router.port", 8080)
	v.SetDefault("router.readTimeout", 30)
	v.SetDefault("router.writeTimeout", 30)
	v.SetDefault("router.bodyLimitBytes", 10*1024*1024) // 10 MiB
	v.SetDefault("router.rateLimitPerSecond", 50)
	v.SetDefault("router.sessionCookieMaxAgeSeconds", -1)

	v.SetDefault("auth.clientId", "")
	v.SetDefault("auth.clientSecret", "")
	v.SetDefault("auth.credentialsFile", "")
	v.SetDefault("auth.jwtSecret", "")
	v.SetDefault("auth.tokenDurationSeconds", 3600)

	v.SetDefault("taskPoll.intervalMs", 5000)

	v.SetDefault("queue.maxConcurrent", 4)
	v.SetDefault("queue.workspace", ".")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")
}

// detectDefaultLogFormat mirrors logger.detectFormat's environment heuristics.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("PLOINKY_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix PLOINKY_ and the upper-cased key
// with dots turned into underscores (router.bodyLimitBytes is
// PLOINKY_ROUTER_BODYLIMITBYTES).
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PLOINKY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/ploinky/")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && path != "" {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Direct env overrides not covered by AutomaticEnv's dotted-key
	// replacement (the single-client-pair shortcut the router CLI uses).
	if clientID := os.Getenv("PLOINKY_AGENT_CLIENT_ID"); clientID != "" {
		v.Set("auth.clientId", clientID)
	}
	if secret := os.Getenv("PLOINKY_AGENT_CLIENT_SECRET"); secret != "" {
		v.Set("auth.clientSecret", secret)
	}
	if portStr := os.Getenv("PLOINKY_ROUTER_PORT"); portStr != "" {
		var port int
		if _, err := fmt.Sscanf(portStr, "%d", &port); err == nil {
			v.Set("router.port", port)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if cfg.Agents == nil {
		cfg.Agents = map[string]AgentRoute{}
	}
	for name, route := range cfg.Agents {
		route.AgentName = name
		cfg.Agents[name] = route
	}

	return &cfg, nil
}
