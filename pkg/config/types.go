package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Storage      StorageConfig      `yaml:"storage"`
	Security     SecurityConfig     `yaml:"security"`
	Logging      LoggingConfig      `yaml:"logging"`
	Engagement   EngagementConfig   `yaml:"engagement"`
	Celebrations CelebrationsConfig `yaml:"celebrations"`
	Hub          HubConfig          `yaml:"hub"`
	Cache        CacheConfig        `yaml:"cache"`
	Fanout       FanoutConfig       `yaml:"fanout"`
	Sweep        SweepConfig        `yaml:"sweep"`
}

// ServerConfig holds http and tls settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StorageConfig holds durable store settings.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
}

// SecurityConfig holds security related settings.
type SecurityConfig struct {
	CORS struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		// RPS/Burst bound requests per client IP at the HTTP edge.
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
		// MutationsPerMinute bounds accepted mutations per user per post.
		MutationsPerMinute int `yaml:"mutations_per_minute"`
	} `yaml:"rate_limit"`
	IPWhitelist []string `yaml:"ip_whitelist"`
	APIKeys     struct {
		Backend  []string `yaml:"backend"`
		Frontend []string `yaml:"frontend"`
		Admin    []string `yaml:"admin"`
	} `yaml:"api_keys"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// EngagementConfig tunes snapshot computation and warmth scoring.
type EngagementConfig struct {
	// MaxCommentDepth bounds comment tree nesting; replies below this
	// depth are rejected.
	MaxCommentDepth int `yaml:"max_comment_depth"`
	// MaxCommentLen bounds comment content length in bytes.
	MaxCommentLen int `yaml:"max_comment_len"`
	// WarmthHalfLife is the decay half-life applied to each user's
	// contribution to the warmth score.
	WarmthHalfLife Duration `yaml:"warmth_half_life"`
	// WarmthUserCap caps any single user's raw contribution so one very
	// active relative cannot dominate the score.
	WarmthUserCap float64 `yaml:"warmth_user_cap"`
	// WarmthSaturation is the k in 1-exp(-k*sum); tuned so roughly six
	// fully engaged participants approach 1.0.
	WarmthSaturation float64 `yaml:"warmth_saturation"`
}

// CelebrationsConfig tunes the one-shot trigger engine. Triggers run by
// default; Disabled is the explicit opt-out.
type CelebrationsConfig struct {
	Disabled          bool    `yaml:"disabled"`
	WarmthThreshold   float64 `yaml:"warmth_threshold"`
	ReactorMilestones []int   `yaml:"reactor_milestones"`
	MilestoneWeeks    []int   `yaml:"milestone_weeks"`
}

// HubConfig tunes websocket broadcast.
type HubConfig struct {
	// SubscriberBuffer is the per-subscriber outbound frame buffer; a
	// subscriber whose buffer stays full is dropped, not blocked on.
	SubscriberBuffer int      `yaml:"subscriber_buffer"`
	WriteTimeout     Duration `yaml:"write_timeout"`
	PingInterval     Duration `yaml:"ping_interval"`
	// SnapshotPosts bounds how many recently active posts the initial
	// snapshot frame carries.
	SnapshotPosts int `yaml:"snapshot_posts"`
}

// CacheConfig tunes the tiered read cache.
type CacheConfig struct {
	Memory struct {
		Entries int      `yaml:"entries"`
		TTL     Duration `yaml:"ttl"`
	} `yaml:"memory"`
	Redis struct {
		Enabled   bool     `yaml:"enabled"`
		Addr      string   `yaml:"addr"`
		Password  string   `yaml:"password"`
		DB        int      `yaml:"db"`
		TTL       Duration `yaml:"ttl"`
		TTLJitter Duration `yaml:"ttl_jitter"`
	} `yaml:"redis"`
}

// FanoutConfig holds the recompute/broadcast queue tunables.
type FanoutConfig struct {
	Queue   QueueConfig `yaml:"queue"`
	Workers int         `yaml:"workers"`
}

// QueueConfig holds in-memory queue tunables.
type QueueConfig struct {
	Capacity             int       `yaml:"capacity"`
	DrainPollInterval    Duration  `yaml:"drain_poll_interval"`
	MaxPooledBufferBytes SizeBytes `yaml:"max_pooled_buffer_bytes"`
}

// SweepConfig holds configuration for the periodic maintenance job that
// rebuilds stale snapshots and expires cold cache entries.
type SweepConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Cron      string `yaml:"cron"`
	BatchSize int    `yaml:"batch_size"`
	DryRun    bool   `yaml:"dry_run"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
