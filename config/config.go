// Package config 读取服务配置：先加载 YAML 文件，再用 P2PIO_* 环境变量覆盖。
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config 服务配置
type Config struct {
	Addr        string `yaml:"addr" env:"P2PIO_ADDR"`
	DefaultRoom string `yaml:"default_room" env:"P2PIO_DEFAULT_ROOM"`
	WebDir      string `yaml:"web_dir" env:"P2PIO_WEB_DIR"`

	Log     LogConfig     `yaml:"log"`
	Journal JournalConfig `yaml:"journal"`
	Room    RoomConfig    `yaml:"room"`
}

// LogConfig zap + lumberjack 滚动日志
type LogConfig struct {
	File       string `yaml:"file" env:"P2PIO_LOG_FILE"`
	Level      string `yaml:"level" env:"P2PIO_LOG_LEVEL"`
	Stderr     bool   `yaml:"stderr" env:"P2PIO_LOG_STDERR"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"P2PIO_LOG_MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"P2PIO_LOG_MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"P2PIO_LOG_MAX_AGE_DAYS"`
}

// JournalConfig 已确认交易的 SQLite journal；Path 为空则不持久化
type JournalConfig struct {
	Path string `yaml:"path" env:"P2PIO_JOURNAL_PATH"`
}

// RoomConfig 房间广播循环
type RoomConfig struct {
	TicksPerSecond int `yaml:"ticks_per_second" env:"P2PIO_ROOM_TPS"`
	SyncEveryTicks int `yaml:"sync_every_ticks" env:"P2PIO_ROOM_SYNC_EVERY"`
}

// Default 默认配置
func Default() Config {
	return Config{
		Addr:        ":8080",
		DefaultRoom: "room-1",
		WebDir:      "web",
		Log: LogConfig{
			File:       "app.log",
			Level:      "debug",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 7,
		},
		Journal: JournalConfig{Path: "data/journal.db"},
		Room: RoomConfig{
			TicksPerSecond: 20,
			SyncEveryTicks: 1,
		},
	}
}

// Load 从默认值出发，path 非空时合并 YAML，最后应用环境变量
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate 检查取值范围
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.DefaultRoom == "" {
		errs = append(errs, errors.New("default_room is required"))
	}
	if c.Room.TicksPerSecond <= 0 || c.Room.TicksPerSecond > 1000 {
		errs = append(errs, fmt.Errorf("room.ticks_per_second must be in 1..1000, got %d", c.Room.TicksPerSecond))
	}
	if c.Room.SyncEveryTicks <= 0 {
		errs = append(errs, fmt.Errorf("room.sync_every_ticks must be positive, got %d", c.Room.SyncEveryTicks))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	return errors.Join(errs...)
}
