// Package config loads the client configuration from yaml.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      Server      `yaml:"server"`
	Wire        Wire        `yaml:"wire"`
	ResourceAPI ResourceAPI `yaml:"resource_api"`
	Loop        Loop        `yaml:"loop"`
	Chat        Chat        `yaml:"chat"`
	Textures    Textures    `yaml:"textures"`
	Persistence Persistence `yaml:"persistence"`
}

type Server struct {
	Address            string `yaml:"address"`
	HandshakeTimeoutMs int    `yaml:"handshake_timeout_ms"`
	WriteTimeoutMs     int    `yaml:"write_timeout_ms"`
	ReadTimeoutMs      int    `yaml:"read_timeout_ms"`
	MaxFrameBytes      int64  `yaml:"max_frame_bytes"`
}

type Wire struct {
	// Tagged adds the kind discriminant to every outbound frame.
	Tagged bool `yaml:"tagged"`
}

type ResourceAPI struct {
	URL                    string  `yaml:"url"`
	HTTPTimeoutMs          int     `yaml:"http_timeout_ms"`
	TokenRequestsPerSecond float64 `yaml:"token_requests_per_second"`
	TokenRequestBurst      int     `yaml:"token_request_burst"`
}

type Loop struct {
	TickRateHz int `yaml:"tick_rate_hz"`
}

type Chat struct {
	MessagesPerSecond float64 `yaml:"messages_per_second"`
	Burst             int     `yaml:"burst"`
}

type Textures struct {
	Root string `yaml:"root"`
}

type Persistence struct {
	DataDir   string `yaml:"data_dir"`
	Record    bool   `yaml:"record"`
	DisableDB bool   `yaml:"disable_db"`
}

func Defaults() Config {
	return Config{
		Server: Server{
			Address:            "ws://localhost:7777",
			HandshakeTimeoutMs: 5000,
			WriteTimeoutMs:     5000,
			MaxFrameBytes:      4 << 20,
		},
		Wire: Wire{Tagged: true},
		ResourceAPI: ResourceAPI{
			URL:                    "http://localhost:7778",
			HTTPTimeoutMs:          30000,
			TokenRequestsPerSecond: 2,
			TokenRequestBurst:      4,
		},
		Loop:        Loop{TickRateHz: 60},
		Chat:        Chat{MessagesPerSecond: 2, Burst: 5},
		Textures:    Textures{Root: "assets"},
		Persistence: Persistence{DataDir: "data"},
	}
}

// Load reads path over Defaults. Keys missing from the file keep their
// default value.
func Load(path string) (Config, error) {
	cfg := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields Defaults.
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return Defaults(), nil
	}
	return cfg, err
}

func (c Config) Validate() error {
	u, err := url.Parse(c.Server.Address)
	if err != nil {
		return fmt.Errorf("server.address: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server.address: scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.Loop.TickRateHz <= 0 || c.Loop.TickRateHz > 1000 {
		return fmt.Errorf("loop.tick_rate_hz: out of range: %d", c.Loop.TickRateHz)
	}
	if c.Chat.MessagesPerSecond < 0 || c.ResourceAPI.TokenRequestsPerSecond < 0 {
		return errors.New("rate limits must not be negative")
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (s Server) HandshakeTimeout() time.Duration { return ms(s.HandshakeTimeoutMs) }
func (s Server) WriteTimeout() time.Duration     { return ms(s.WriteTimeoutMs) }
func (s Server) ReadTimeout() time.Duration      { return ms(s.ReadTimeoutMs) }

func (r ResourceAPI) HTTPTimeout() time.Duration { return ms(r.HTTPTimeoutMs) }
