package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/angas/pvpc-go/logging"
	"github.com/angas/pvpc-go/types"
	"github.com/spf13/viper"
)

type AppConfigPricing struct {
	// Tariff is "2.0TD" or "2.0TD (Ceuta/Melilla)"
	Tariff *string
	// Timezone for attribute hours, default: Europe/Madrid
	Timezone *string
	// Contracted power in kW outside the valley period
	Power *float64
	// Contracted power in kW during the valley period (peak-valley contracts)
	PowerValley *float64 `mapstructure:"power_valley"`
	// Per-fetch timeout in seconds, default: 5
	TimeoutSeconds *int `mapstructure:"timeout_seconds"`
	// Token for the private esios API; enables the non-PVPC indicators
	APIToken string `mapstructure:"api_token"`
	// Indicators to track, default: ["PVPC"] (or all with an API token)
	Sensors []string
	// Cron spec for the update cycle, default: hourly on the half hour
	RunAt *string `mapstructure:"run_at"`
}

func (p AppConfigPricing) GetTariff() string {
	if p.Tariff == nil {
		return types.Tariff20TD
	}
	return *p.Tariff
}

func (p AppConfigPricing) GetTimezone() string {
	if p.Timezone == nil {
		return "Europe/Madrid"
	}
	return *p.Timezone
}

func (p AppConfigPricing) GetPower() float64 {
	if p.Power == nil {
		return 3.3
	}
	return *p.Power
}

func (p AppConfigPricing) GetPowerValley() float64 {
	if p.PowerValley == nil {
		return p.GetPower()
	}
	return *p.PowerValley
}

func (p AppConfigPricing) GetTimeout() time.Duration {
	if p.TimeoutSeconds == nil {
		return 5 * time.Second
	}
	return time.Duration(*p.TimeoutSeconds) * time.Second
}

func (p AppConfigPricing) GetSensorKeys() []types.SensorKey {
	if len(p.Sensors) == 0 {
		if p.APIToken != "" {
			return []types.SensorKey{types.KeyPVPC, types.KeyInjection, types.KeyMAG, types.KeyOMIE}
		}
		return []types.SensorKey{types.KeyPVPC}
	}
	keys := make([]types.SensorKey, 0, len(p.Sensors))
	for _, s := range p.Sensors {
		keys = append(keys, types.SensorKey(strings.ToUpper(s)))
	}
	return keys
}

func (p AppConfigPricing) GetRunAt() string {
	if p.RunAt == nil {
		return "30 * * * *"
	}
	return *p.RunAt
}

type AppConfigMqtt struct {
	// If host is empty, MQTT publishing is disabled
	Host     string
	Port     int16
	Username string
	Password string
	// Topic prefix for sensor states, default: "pvpc"
	TopicPrefix *string `mapstructure:"topic_prefix"`
}

func (m AppConfigMqtt) Enabled() bool {
	return m.Host != ""
}

func (m AppConfigMqtt) GetTopicPrefix() string {
	if m.TopicPrefix == nil {
		return "pvpc"
	}
	return *m.TopicPrefix
}

type AppConfigApi struct {
	Address string
	Port    int16
}

type AppConfigLogging struct {
	// Min console log level: "DEBUG", "INFO", "WARN", "ERROR", default: "INFO"
	ConsoleLevel *string `mapstructure:"console_level"`
}

func (l AppConfigLogging) GetConsoleLevel() slog.Level {
	return logging.LevelFromString(l.ConsoleLevel)
}

type AppConfig struct {
	Pricing AppConfigPricing
	Mqtt    AppConfigMqtt
	Api     AppConfigApi
	Logging AppConfigLogging
}

func Load(path string) (*AppConfig, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.AddConfigPath("config")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var c AppConfig

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	if err := viper.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config file: %w", err)
	}

	// Fail fast on a misconfigured tariff instead of deep in a cycle.
	if !types.ValidTariff(c.Pricing.GetTariff()) {
		return nil, fmt.Errorf("unknown tariff: %q", c.Pricing.GetTariff())
	}

	return &c, nil
}
