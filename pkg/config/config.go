package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig holds derived runtime values that other packages may query
// at runtime (populated during startup by main after merging env+file).
type RuntimeConfig struct {
	BackendKeys  map[string]struct{}
	FrontendKeys map[string]struct{}
	AdminKeys    map[string]struct{}
}

var (
	runtimeMu  sync.RWMutex
	runtimeCfg *RuntimeConfig
)

// SetRuntime sets the canonical runtime config used by the running server.
func SetRuntime(rc *RuntimeConfig) {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	runtimeCfg = rc
}

func copyKeys(m map[string]struct{}) map[string]struct{} {
	out := map[string]struct{}{}
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

// GetBackendKeys returns a copy of configured backend keys.
func GetBackendKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	if runtimeCfg == nil {
		return map[string]struct{}{}
	}
	return copyKeys(runtimeCfg.BackendKeys)
}

// GetFrontendKeys returns a copy of configured frontend keys.
func GetFrontendKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	if runtimeCfg == nil {
		return map[string]struct{}{}
	}
	return copyKeys(runtimeCfg.FrontendKeys)
}

// GetSigningKeys returns the secrets accepted for user signature
// verification. Signing keys are identical to backend API keys.
func GetSigningKeys() map[string]struct{} {
	return GetBackendKeys()
}

// GetAdminKeys returns a copy of configured admin keys.
func GetAdminKeys() map[string]struct{} {
	runtimeMu.RLock()
	defer runtimeMu.RUnlock()
	if runtimeCfg == nil {
		return map[string]struct{}{}
	}
	return copyKeys(runtimeCfg.AdminKeys)
}

// Addr returns host:port for HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// ApplyDefaults fills zero values with the engine's operational defaults.
func (c *Config) ApplyDefaults() {
	if c.Engagement.MaxCommentDepth == 0 {
		c.Engagement.MaxCommentDepth = 5
	}
	if c.Engagement.MaxCommentLen == 0 {
		c.Engagement.MaxCommentLen = 4096
	}
	if c.Engagement.WarmthHalfLife == 0 {
		c.Engagement.WarmthHalfLife = Duration(48 * time.Hour)
	}
	if c.Engagement.WarmthUserCap == 0 {
		c.Engagement.WarmthUserCap = 3
	}
	if c.Engagement.WarmthSaturation == 0 {
		c.Engagement.WarmthSaturation = 0.3
	}
	if c.Celebrations.WarmthThreshold == 0 {
		c.Celebrations.WarmthThreshold = 0.7
	}
	if len(c.Celebrations.ReactorMilestones) == 0 {
		c.Celebrations.ReactorMilestones = []int{3, 5, 10}
	}
	if len(c.Celebrations.MilestoneWeeks) == 0 {
		c.Celebrations.MilestoneWeeks = []int{12, 20, 40}
	}
	if c.Hub.SubscriberBuffer == 0 {
		c.Hub.SubscriberBuffer = 64
	}
	if c.Hub.WriteTimeout == 0 {
		c.Hub.WriteTimeout = Duration(10 * time.Second)
	}
	if c.Hub.PingInterval == 0 {
		c.Hub.PingInterval = Duration(30 * time.Second)
	}
	if c.Hub.SnapshotPosts == 0 {
		c.Hub.SnapshotPosts = 50
	}
	if c.Cache.Memory.Entries == 0 {
		c.Cache.Memory.Entries = 4096
	}
	if c.Cache.Memory.TTL == 0 {
		c.Cache.Memory.TTL = Duration(30 * time.Second)
	}
	if c.Cache.Redis.TTL == 0 {
		c.Cache.Redis.TTL = Duration(5 * time.Minute)
	}
	if c.Cache.Redis.TTLJitter == 0 {
		c.Cache.Redis.TTLJitter = Duration(30 * time.Second)
	}
	if c.Fanout.Queue.Capacity == 0 {
		c.Fanout.Queue.Capacity = 8192
	}
	if c.Fanout.Queue.DrainPollInterval == 0 {
		c.Fanout.Queue.DrainPollInterval = Duration(50 * time.Millisecond)
	}
	if c.Fanout.Queue.MaxPooledBufferBytes == 0 {
		c.Fanout.Queue.MaxPooledBufferBytes = SizeBytes(1 << 20)
	}
	if c.Fanout.Workers == 0 {
		c.Fanout.Workers = 1
	}
	if c.Security.RateLimit.MutationsPerMinute == 0 {
		c.Security.RateLimit.MutationsPerMinute = 60
	}
	if c.Sweep.Cron == "" {
		c.Sweep.Cron = "*/10 * * * *"
	}
	if c.Sweep.BatchSize == 0 {
		c.Sweep.BatchSize = 200
	}
}

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
func ParseCommandFlags() (addr string, dbPath string, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *dbPtr, *cfgPtr, setFlags
}

// LoadEnvOverrides applies environment overrides onto the provided cfg and
// reports whether any env vars were used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	if v := os.Getenv("HEARTHSYNC_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	} else {
		if host := os.Getenv("HEARTHSYNC_ADDRESS"); host != "" {
			envUsed = true
			cfg.Server.Address = host
		}
		if port := os.Getenv("HEARTHSYNC_PORT"); port != "" {
			envUsed = true
			if pi, err := strconv.Atoi(port); err == nil {
				cfg.Server.Port = pi
			}
		}
	}

	if v := os.Getenv("HEARTHSYNC_DB_PATH"); v != "" {
		envUsed = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("HEARTHSYNC_CORS_ORIGINS"); v != "" {
		envUsed = true
		cfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := os.Getenv("HEARTHSYNC_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("HEARTHSYNC_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("HEARTHSYNC_MUTATIONS_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Security.RateLimit.MutationsPerMinute = n
		}
	}
	if v := os.Getenv("HEARTHSYNC_IP_WHITELIST"); v != "" {
		envUsed = true
		cfg.Security.IPWhitelist = parseList(v)
	}
	if v := os.Getenv("HEARTHSYNC_API_BACKEND_KEYS"); v != "" {
		envUsed = true
		cfg.Security.APIKeys.Backend = parseList(v)
	}
	if v := os.Getenv("HEARTHSYNC_API_FRONTEND_KEYS"); v != "" {
		envUsed = true
		cfg.Security.APIKeys.Frontend = parseList(v)
	}
	if v := os.Getenv("HEARTHSYNC_API_ADMIN_KEYS"); v != "" {
		envUsed = true
		cfg.Security.APIKeys.Admin = parseList(v)
	}
	if v := os.Getenv("HEARTHSYNC_REDIS_ADDR"); v != "" {
		envUsed = true
		cfg.Cache.Redis.Enabled = true
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("HEARTHSYNC_REDIS_PASSWORD"); v != "" {
		envUsed = true
		cfg.Cache.Redis.Password = v
	}
	if c := os.Getenv("HEARTHSYNC_TLS_CERT"); c != "" {
		envUsed = true
		cfg.Server.TLS.CertFile = c
	}
	if k := os.Getenv("HEARTHSYNC_TLS_KEY"); k != "" {
		envUsed = true
		cfg.Server.TLS.KeyFile = k
	}
	return envUsed
}

// RuntimeKeys derives the runtime key sets from the effective config.
func RuntimeKeys(cfg *Config) *RuntimeConfig {
	rc := &RuntimeConfig{
		BackendKeys:  map[string]struct{}{},
		FrontendKeys: map[string]struct{}{},
		AdminKeys:    map[string]struct{}{},
	}
	for _, k := range cfg.Security.APIKeys.Backend {
		rc.BackendKeys[k] = struct{}{}
	}
	for _, k := range cfg.Security.APIKeys.Frontend {
		rc.FrontendKeys[k] = struct{}{}
	}
	for _, k := range cfg.Security.APIKeys.Admin {
		rc.AdminKeys[k] = struct{}{}
	}
	return rc
}

// LoadEffective loads config from the given path (file), applies environment
// overrides and defaults. It returns the effective config, the derived
// runtime key sets and whether env vars were used.
func LoadEffective(path string) (*Config, *RuntimeConfig, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		cfg = &Config{}
	}
	envUsed := LoadEnvOverrides(cfg)
	cfg.ApplyDefaults()
	return cfg, RuntimeKeys(cfg), envUsed, nil
}

// ResolveConfigPath decides the config file path using the flag-provided value
// and the environment variable `HEARTHSYNC_CONFIG` when the flag was not set.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("HEARTHSYNC_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
