package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseCommandFlags defines and parses command-line flags and returns their
// values along with a map indicating which flags were explicitly set.
func ParseCommandFlags() (addr string, stateDir string, cfgPath string, ticket int64, setFlags map[string]bool) {
	addrPtr := flag.String("addr", "127.0.0.1:9090", "health/metrics listen address")
	statePtr := flag.String("state", "./.deskchat", "local state directory")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	ticketPtr := flag.Int64("ticket", 0, "ticket id to attach a chat session to")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *statePtr, *cfgPtr, *ticketPtr, setFlags
}

// LoadEnvOverrides applies environment overrides onto the provided cfg and
// reports whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false

	setStr := func(name string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			envUsed = true
			*dst = v
		}
	}
	setBool := func(name string, dst *bool) {
		if v := strings.ToLower(strings.TrimSpace(os.Getenv(name))); v != "" {
			envUsed = true
			*dst = v == "1" || v == "true" || v == "yes"
		}
	}
	setInt64 := func(name string, dst *int64) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				envUsed = true
				*dst = n
			}
		}
	}

	setStr("DESKCHAT_API_ORIGIN", &cfg.API.Origin)
	setStr("DESKCHAT_TOKEN", &cfg.API.Token)
	setInt64("DESKCHAT_VIEWER_ID", &cfg.Viewer.ID)
	setStr("DESKCHAT_VIEWER_NAME", &cfg.Viewer.Name)
	setStr("DESKCHAT_VIEWER_ROLE", &cfg.Viewer.Role)

	setStr("DESKCHAT_APP_KEY", &cfg.Realtime.AppKey)
	setStr("DESKCHAT_APP_CLUSTER", &cfg.Realtime.Cluster)
	setBool("DESKCHAT_FORCE_TLS", &cfg.Realtime.ForceTLS)
	setStr("DESKCHAT_WS_HOST", &cfg.Realtime.Host)
	if v := strings.TrimSpace(os.Getenv("DESKCHAT_WS_PORT")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			envUsed = true
			cfg.Realtime.Port = n
		}
	}

	if v := os.Getenv("DESKCHAT_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Daemon.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Daemon.Port = pi
			}
		} else {
			cfg.Daemon.Address = v
		}
	}
	setStr("DESKCHAT_STATE_DIR", &cfg.Daemon.StateDir)
	setInt64("DESKCHAT_TICKET", &cfg.Daemon.Ticket)

	setBool("DESKCHAT_RESYNC_ENABLED", &cfg.Resync.Enabled)
	setStr("DESKCHAT_RESYNC_CRON", &cfg.Resync.Cron)
	setStr("DESKCHAT_LOG_LEVEL", &cfg.Logging.Level)

	// hub overrides (only relevant to cmd/deskhub)
	setStr("DESKCHAT_HUB_APP_KEY", &cfg.Hub.AppKey)
	setStr("DESKCHAT_HUB_APP_SECRET", &cfg.Hub.AppSecret)
	setStr("DESKCHAT_HUB_DB_PATH", &cfg.Hub.DBPath)
	if v := os.Getenv("DESKCHAT_HUB_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Hub.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Hub.Port = pi
			}
		} else {
			cfg.Hub.Address = v
		}
	}

	return envUsed
}

// LoadEffective loads config from the given path (file) and applies
// environment overrides. A missing file is not an error: env vars and
// defaults still produce a usable config.
func LoadEffective(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
	}
	envUsed := LoadEnvOverrides(cfg)
	return cfg, envUsed, nil
}

// ResolveConfigPath decides the config file path using the flag-provided
// value when explicitly set, otherwise the DESKCHAT_CONFIG env var,
// otherwise the flag default.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if v := strings.TrimSpace(os.Getenv("DESKCHAT_CONFIG")); v != "" {
		return v
	}
	return flagPath
}
