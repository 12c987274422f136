package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"power-budget/internal/logging"
	"power-budget/internal/power"

	"gopkg.in/yaml.v3"
)

const defaultSubject = "power.allocation"

func LoadConfig(filepath string) (*Config, error) {
	config, _, err := LoadConfigWithContent(filepath)
	return config, err
}

func LoadConfigWithContent(filepath string) (*Config, string, error) {
	logger := logging.GetLogger()

	data, err := os.ReadFile(filepath)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to read config file")
		return nil, "", err
	}

	config, err := Parse(data)
	if err != nil {
		logger.WithField("filepath", filepath).WithError(err).Error("Failed to parse config file")
		return nil, "", err
	}
	return config, string(data), nil
}

// Parse expands ${VAR} references, decodes the YAML document, fills defaults
// and validates the result.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, err
	}

	setDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func expandEnvVars(content string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(content, func(match string) string {
		envVar := strings.Trim(match, "${}")
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match
	})
}

func setDefaults(config *Config) {
	if config.Manager.Name == "" {
		config.Manager.Name = "default"
	}
	if config.Manager.SafeCapacity == 0 {
		config.Manager.SafeCapacity = power.DefaultSafeCapacity
	}
	if config.Manager.MaxCapacity == 0 {
		config.Manager.MaxCapacity = power.DefaultMaxCapacity
	}
	if config.Manager.PerDeviceMax == 0 {
		config.Manager.PerDeviceMax = power.DefaultPerDeviceMax
	}
	if config.Data.NATS.Subject == "" {
		config.Data.NATS.Subject = defaultSubject
	}
	if config.Data.Spool.Dir == "" {
		config.Data.Spool.Dir = "spool"
	}
	for i := range config.Trace {
		config.Trace[i].Action = Action(strings.ToLower(strings.TrimSpace(string(config.Trace[i].Action))))
	}
}

func validateConfig(config *Config) error {
	m := config.Manager
	if err := config.Limits().Validate(); err != nil {
		return err
	}
	if m.PerDeviceMax > m.SafeCapacity {
		return fmt.Errorf("per_device_max %d exceeds safe_capacity %d", m.PerDeviceMax, m.SafeCapacity)
	}

	var lastT int64
	for i, ev := range config.Trace {
		if ev.Device == "" {
			return fmt.Errorf("trace event %d: device is required", i)
		}
		switch ev.Action {
		case ActionConnect, ActionChange:
			if ev.Consumption == nil {
				return fmt.Errorf("trace event %d (%s %s): consumption is required", i, ev.Action, ev.Device)
			}
		case ActionDisconnect:
		default:
			return fmt.Errorf("trace event %d: unknown action %q", i, ev.Action)
		}
		if i > 0 && ev.T < lastT {
			return fmt.Errorf("trace event %d: t=%d is earlier than previous t=%d", i, ev.T, lastT)
		}
		lastT = ev.T
	}

	return nil
}
