package config

import (
	"power-budget/internal/power"
)

type Config struct {
	Manager ManagerConfig `yaml:"manager"`
	Trace   []EventConfig `yaml:"trace"`
	Data    DataConfig    `yaml:"data"`
}

type ManagerConfig struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	SafeCapacity int    `yaml:"safe_capacity"`
	MaxCapacity  int    `yaml:"max_capacity"`
	PerDeviceMax int    `yaml:"per_device_max"`
	UniqueNames  bool   `yaml:"unique_names"`
	LogLevel     string `yaml:"log_level"`
}

type Action string

const (
	ActionConnect    Action = "connect"
	ActionDisconnect Action = "disconnect"
	ActionChange     Action = "change"
)

// EventConfig is one step of a replayable trace. T is passed through as the
// connection time of connect events and otherwise only orders the trace.
type EventConfig struct {
	T           int64  `yaml:"t" json:"t"`
	Action      Action `yaml:"action" json:"action"`
	Device      string `yaml:"device" json:"device"`
	Consumption *int   `yaml:"consumption,omitempty" json:"consumption,omitempty"`
}

type DataConfig struct {
	DB    DatabaseConfig `yaml:"db"`
	NATS  NATSConfig     `yaml:"nats"`
	Spool SpoolConfig    `yaml:"spool"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Org      string `yaml:"org"`
}

type NATSConfig struct {
	Server  string `yaml:"server"`
	Port    string `yaml:"port"`
	Subject string `yaml:"subject"`
}

type SpoolConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

func (c *Config) Limits() power.Limits {
	return power.Limits{
		SafeCapacity: c.Manager.SafeCapacity,
		MaxCapacity:  c.Manager.MaxCapacity,
		PerDeviceMax: c.Manager.PerDeviceMax,
	}
}

func (c *Config) ManagerOptions() power.Options {
	return power.Options{
		Limits:      c.Limits(),
		UniqueNames: c.Manager.UniqueNames,
	}
}

func (e EventConfig) GetConsumption() int {
	if e.Consumption == nil {
		return 0
	}
	return *e.Consumption
}

func (d DatabaseConfig) IsComplete() bool {
	return d.Host != "" && d.Name != "" && d.Password != "" && d.Org != ""
}
