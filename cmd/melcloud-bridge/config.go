package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"melcloud-bridge/internal/capability"
	"melcloud-bridge/internal/engine"
	"melcloud-bridge/internal/melcloud"
	"melcloud-bridge/internal/modes"
	"melcloud-bridge/internal/telemetry"
)

type Config struct {
	Account struct {
		Name          string `yaml:"name"`
		Variant       string `yaml:"variant"` // "melcloud" or "melcloud_home"
		BaseURL       string `yaml:"base_url"`
		ContextKey    string `yaml:"context_key"`
		DevicesFile   string `yaml:"devices_file"`
		UseFahrenheit bool   `yaml:"use_fahrenheit"`
		WriteTimeout  string `yaml:"write_timeout"`
	} `yaml:"account"`
	Devices []DeviceEntry `yaml:"devices"`
	Engine  struct {
		CommandEchoDelay string `yaml:"command_echo_delay"`
	} `yaml:"engine"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Store struct {
		Path string `yaml:"path"`
	} `yaml:"store"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		ClientID    string `yaml:"client_id"`
		TopicPrefix string `yaml:"topic_prefix"`
		Discovery   bool   `yaml:"discovery"`
	} `yaml:"mqtt"`
	InfluxDB telemetry.InfluxConfig `yaml:"influxdb"`
	Kafka    telemetry.KafkaConfig  `yaml:"kafka"`
	Log      struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	ScriptsDir string `yaml:"scripts_dir"`
}

// DeviceEntry is one configured device.
type DeviceEntry struct {
	ID              string `yaml:"id"`
	Family          string `yaml:"family"`
	Name            string `yaml:"name"`
	RefreshInterval string `yaml:"refresh_interval"`
	Presentation    string `yaml:"presentation"`

	HeatMode string `yaml:"heat_mode"` // heat, dry, fan or disabled
	CoolMode string `yaml:"cool_mode"`
	AutoMode string `yaml:"auto_mode"`

	DisableHeat               bool `yaml:"disable_heat"`
	DisableCool               bool `yaml:"disable_cool"`
	DisableAuto               bool `yaml:"disable_auto"`
	DisableDry                bool `yaml:"disable_dry"`
	DisableSwing              bool `yaml:"disable_swing"`
	DisableAutomaticFanSpeed  bool `yaml:"disable_automatic_fan_speed"`
	DisableOutdoorTemperature bool `yaml:"disable_outdoor_temperature"`
	DisableHotWater           bool `yaml:"disable_hot_water"`
	DisableBypass             bool `yaml:"disable_bypass"`

	HideZones []string `yaml:"hide_zones"` // zone roles: zone1, zone2, hot_water, heat_pump
}

func (c *Config) validate() error {
	if c.Account.DevicesFile == "" {
		return fmt.Errorf("account.devices_file is required")
	}
	if _, err := melcloud.ParseVariant(c.Account.Variant); err != nil {
		return fmt.Errorf("account.variant: %w", err)
	}
	if len(c.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if _, err := d.deviceConfig(); err != nil {
			return fmt.Errorf("devices[%d]: %w", i, err)
		}
		if seen[d.ID] {
			return fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID)
		}
		seen[d.ID] = true
	}
	for name, v := range map[string]string{
		"engine.command_echo_delay": c.Engine.CommandEchoDelay,
		"account.write_timeout":     c.Account.WriteTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// deviceConfig translates the YAML entry into the engine's device settings.
func (d DeviceEntry) deviceConfig() (engine.DeviceConfig, error) {
	if d.ID == "" {
		return engine.DeviceConfig{}, fmt.Errorf("id is required")
	}
	family, err := melcloud.ParseFamily(d.Family)
	if err != nil {
		return engine.DeviceConfig{}, err
	}
	cfg := engine.DeviceConfig{
		ID:     d.ID,
		Name:   d.Name,
		Family: family,
		Preferences: capability.Preferences{
			DisableHeat:               d.DisableHeat,
			DisableCool:               d.DisableCool,
			DisableAuto:               d.DisableAuto,
			DisableDry:                d.DisableDry,
			DisableSwing:              d.DisableSwing,
			DisableAutomaticFanSpeed:  d.DisableAutomaticFanSpeed,
			DisableOutdoorTemperature: d.DisableOutdoorTemperature,
			DisableHotWater:           d.DisableHotWater,
			DisableBypass:             d.DisableBypass,
		},
	}

	if d.RefreshInterval != "" {
		if cfg.RefreshInterval, err = time.ParseDuration(d.RefreshInterval); err != nil {
			return engine.DeviceConfig{}, fmt.Errorf("refresh_interval: %w", err)
		}
	}
	if d.Presentation != "" {
		if cfg.Presentation, err = modes.ParsePresentation(d.Presentation); err != nil {
			return engine.DeviceConfig{}, err
		}
	}
	if cfg.Aliases.Heat, err = modes.ParseAlias(modes.SlotHeat, d.HeatMode); err != nil {
		return engine.DeviceConfig{}, err
	}
	if cfg.Aliases.Cool, err = modes.ParseAlias(modes.SlotCool, d.CoolMode); err != nil {
		return engine.DeviceConfig{}, err
	}
	if cfg.Aliases.Auto, err = modes.ParseAlias(modes.SlotAuto, d.AutoMode); err != nil {
		return engine.DeviceConfig{}, err
	}
	if err := cfg.Aliases.Validate(); err != nil {
		return engine.DeviceConfig{}, err
	}
	for _, z := range d.HideZones {
		role, err := capability.ParseRole(z)
		if err != nil {
			return engine.DeviceConfig{}, fmt.Errorf("hide_zones: %w", err)
		}
		cfg.Hide = cfg.Hide.Hide(role)
	}
	return cfg, nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)

	if cfg.Account.Variant == "" {
		cfg.Account.Variant = string(melcloud.VariantMELCloud)
	}
	if cfg.Account.WriteTimeout == "" {
		cfg.Account.WriteTimeout = "10s"
	}
	if cfg.Engine.CommandEchoDelay == "" {
		cfg.Engine.CommandEchoDelay = engine.DefaultEchoDelay.String()
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "melcloud-bridge.db"
	}
	if cfg.ScriptsDir == "" {
		cfg.ScriptsDir = "scripts"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "melcloud"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

// applyEnv lets secrets stay out of the config file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MELCLOUD_CONTEXT_KEY"); v != "" {
		cfg.Account.ContextKey = v
	}
	if v := os.Getenv("MELCLOUD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("MELCLOUD_INFLUX_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	if cfg.Account.Name != "" {
		logger = logger.With("account", cfg.Account.Name)
	}
	return logger
}
