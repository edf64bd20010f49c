package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	mu sync.RWMutex `yaml:"-"`

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Radio     RadioConfig     `yaml:"radio"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Messaging MessagingConfig `yaml:"messaging"`
	Web       WebConfig       `yaml:"web"`
	Logging   LoggingConfig   `yaml:"logging"`
	AI        AIConfig        `yaml:"ai"`
	Sources   []SourceConfig  `yaml:"sources"`
}

type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RadioConfig describes the MQTT gateway that bridges the mesh device.
type RadioConfig struct {
	Broker         string `yaml:"broker"`
	Port           int    `yaml:"port"`
	ClientID       string `yaml:"client_id"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TopicRoot      string `yaml:"topic_root"`
	PublicChannel  int    `yaml:"public_channel"`
	PrivateChannel int    `yaml:"private_channel"`
}

type MonitorConfig struct {
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	SilenceThreshold   int           `yaml:"silence_threshold"`
	TraceMinSpacing    time.Duration `yaml:"trace_min_spacing"`
	TraceNodeInterval  time.Duration `yaml:"trace_node_interval"`
	FreshnessWindow    time.Duration `yaml:"freshness_window"`
	EdgeRecencyWindow  time.Duration `yaml:"edge_recency_window"`
	LineDelay          time.Duration `yaml:"line_delay"`
	AircraftAltitude   int           `yaml:"aircraft_altitude"`
	LowBatteryPercent  int           `yaml:"low_battery_percent"`
	MeshDataPath       string        `yaml:"mesh_data_path"`
	FallbackMarkerPath string        `yaml:"fallback_marker_path"`
}

type MessagingConfig struct {
	Kafka       KafkaConfig `yaml:"kafka"`
	EventsTopic string      `yaml:"events_topic"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	GroupID string   `yaml:"group_id"`
}

type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LoggingConfig struct {
	Preset     string `yaml:"preset"` // development, production, testing, debug
	FilePath   string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type AIConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

// SourceConfig is one pollable external source (RSS feed, weather zone,
// scraper). The fetch itself is a collaborator; only the schedule lives here.
type SourceConfig struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	URL           string `yaml:"url"`
	Kind          string `yaml:"kind"`
	Enabled       bool   `yaml:"enabled"`
	CheckInterval time.Duration `yaml:"check_interval"`
}

func Defaults() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{Path: "meshmon.db"},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "meshmon",
				User:     "meshmon",
				Password: "",
				SSLMode:  "disable",
			},
		},
		Redis: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
		},
		Radio: RadioConfig{
			Broker:         "meshtastic.local",
			Port:           1883,
			ClientID:       "meshmon",
			TopicRoot:      "msh/US",
			PublicChannel:  0,
			PrivateChannel: 1,
		},
		Monitor: MonitorConfig{
			HeartbeatInterval:  60 * time.Second,
			SilenceThreshold:   5,
			TraceMinSpacing:    30 * time.Second,
			TraceNodeInterval:  6 * time.Hour,
			FreshnessWindow:    60 * time.Minute,
			EdgeRecencyWindow:  24 * time.Hour,
			LineDelay:          5 * time.Second,
			AircraftAltitude:   2000,
			LowBatteryPercent:  20,
			MeshDataPath:       "mesh_data.json",
			FallbackMarkerPath: "meshmon.degraded",
		},
		Messaging: MessagingConfig{
			Kafka:       KafkaConfig{GroupID: "meshmon"},
			EventsTopic: "meshmon.events",
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8084,
		},
		Logging: LoggingConfig{
			Preset:     "production",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		AI: AIConfig{
			Enabled: false,
			Model:   "gemini-2.0-flash",
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// EnabledSources filters the configured sources down to the enabled ones.
func (c *Config) EnabledSources() []SourceConfig {
	var out []SourceConfig
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
