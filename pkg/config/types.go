package config

import "fmt"

// Config is the main configuration struct for both the client daemon and
// the development hub. Unused sections may be left empty.
type Config struct {
	API      APIConfig      `yaml:"api"`
	Viewer   ViewerConfig   `yaml:"viewer"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Daemon   DaemonConfig   `yaml:"daemon"`
	Resync   ResyncConfig   `yaml:"resync"`
	Hub      HubConfig      `yaml:"hub"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// APIConfig points the client at the ticketing REST API.
type APIConfig struct {
	// Origin is the base URL, e.g. "http://127.0.0.1:8000".
	Origin string `yaml:"origin"`
	// Token is the session bearer token for the viewer.
	Token string `yaml:"token"`
}

// ViewerConfig identifies the authenticated viewer. The browser app keeps
// this in session storage; the daemon takes it from config/env and caches
// it in the local state store.
type ViewerConfig struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
	Role string `yaml:"role"`
}

// RealtimeConfig holds the publish/subscribe transport settings.
type RealtimeConfig struct {
	AppKey   string `yaml:"app_key"`
	Cluster  string `yaml:"cluster"`
	ForceTLS bool   `yaml:"force_tls"`
	// Host/Port override the cluster-derived endpoint (self-hosted
	// websocket servers, the dev hub, tests).
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DaemonConfig holds the client daemon's own surface.
type DaemonConfig struct {
	// Address/Port for the health and metrics listener.
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	// StateDir is where local state (pebble, uploads) lives.
	StateDir string `yaml:"state_dir"`
	// Ticket, when non-zero, attaches a chat session to that ticket.
	Ticket int64 `yaml:"ticket"`
}

// ResyncConfig controls the periodic notification re-fetch.
type ResyncConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

// HubConfig configures the development hub (cmd/deskhub).
type HubConfig struct {
	Address   string           `yaml:"address"`
	Port      int              `yaml:"port"`
	DBPath    string           `yaml:"db_path"`
	AppKey    string           `yaml:"app_key"`
	AppSecret string           `yaml:"app_secret"`
	Tokens    []HubTokenConfig `yaml:"tokens"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// HubTokenConfig maps a bearer token to a viewer identity.
type HubTokenConfig struct {
	Token string `yaml:"token"`
	ID    int64  `yaml:"id"`
	Name  string `yaml:"name"`
	Role  string `yaml:"role"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Addr returns the daemon listen address in host:port form.
func (c *Config) Addr() string {
	host := c.Daemon.Address
	port := c.Daemon.Port
	if port == 0 {
		port = 9090
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// HubAddr returns the hub listen address in host:port form.
func (c *Config) HubAddr() string {
	host := c.Hub.Address
	port := c.Hub.Port
	if port == 0 {
		port = 8000
	}
	return fmt.Sprintf("%s:%d", host, port)
}
