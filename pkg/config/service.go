package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/gazpar_bridge/pkg/pathing"
	"github.com/spf13/viper"
)

const (
	fileName  = "gazpar_bridge.toml"
	envPrefix = "GAZPAR"
)

var (
	ErrMissingCredentials = errors.New("portal username and password are mandatory")
	ErrInvalidOption      = errors.New("invalid configuration option")
)

func Default() *Config {
	return &Config{
		Portal: PortalConfig{
			StartDate: "2020-01-01",
		},
		Mqtt: MqttConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "gazpar_bridge",
			Qos:      1,
			Retain:   true,
			Topic:    "gazpar",
		},
		Publish: PublishConfig{
			Standalone:      false,
			Discovery:       true,
			DiscoveryPrefix: "homeassistant",
			DeviceName:      "gazpar",
		},
		Hass: HassConfig{
			Host:          "http://localhost:8123",
			StatisticsURI: "/api/services/recorder/import_statistics",
			SslGateway:    true,
		},
		Database: DatabaseConfig{
			Path: pathing.GetMeterDbPath(),
		},
		Influx: InfluxConfig{
			Port:      8086,
			MaxErrors: 10,
		},
		Prices: PricesConfig{
			Path:       pathing.GetPricesPath(),
			KwhDefault: 0.07,
			FixDefault: 0.9,
		},
		Run: RunConfig{
			ThresholdPercentage: 80,
			WeekStart:           "monday",
		},
	}
}

// Path of the config file in the config directory.
func Path() string {
	return filepath.Join(pathing.GetConfigDir(), fileName)
}

// Load reads the TOML config at path, creating it with defaults when missing.
// Env vars override file values, prefix GAZPAR_ and sections joined by
// underscores, e.g. GAZPAR_MQTT_HOST.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeDefault(path); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
	}

	defaults, err := encode(Default())
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("toml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("read default config: %w", err)
	}
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	cfgFile, err := os.Create(path)
	if err != nil {
		return err
	}
	defer cfgFile.Close()
	return toml.NewEncoder(cfgFile).Encode(Default())
}

func encode(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate checks options that would make a run pointless or impossible.
func (c *Config) Validate() error {
	if c.Portal.Username == "" || c.Portal.Password == "" {
		return ErrMissingCredentials
	}
	if c.Mqtt.Qos < 0 || c.Mqtt.Qos > 2 {
		return fmt.Errorf("%w: mqtt qos %d", ErrInvalidOption, c.Mqtt.Qos)
	}
	if _, err := c.WeekStart(); err != nil {
		return err
	}
	if c.Run.ScheduleTime != "" {
		if _, err := time.Parse("15:04", c.Run.ScheduleTime); err != nil {
			return fmt.Errorf("%w: schedule time %q", ErrInvalidOption, c.Run.ScheduleTime)
		}
	}
	if c.Influx.MaxErrors < 0 {
		return fmt.Errorf("%w: influx max errors %d", ErrInvalidOption, c.Influx.MaxErrors)
	}
	if c.Portal.StartDate != "" {
		if _, err := time.Parse("2006-01-02", c.Portal.StartDate); err != nil {
			return fmt.Errorf("%w: portal start date %q", ErrInvalidOption, c.Portal.StartDate)
		}
	}
	return nil
}

// WeekStart parses the configured first day of the week.
func (c *Config) WeekStart() (time.Weekday, error) {
	if c.Run.WeekStart == "" {
		return time.Monday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), c.Run.WeekStart) {
			return d, nil
		}
	}
	return time.Monday, fmt.Errorf("%w: week start %q", ErrInvalidOption, c.Run.WeekStart)
}

func (c *Config) MqttBroker() string {
	scheme := "tcp"
	if c.Mqtt.Ssl {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Mqtt.Host, c.Mqtt.Port)
}

func (c *Config) InfluxURL() string {
	host := c.Influx.Host
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return fmt.Sprintf("%s:%d", host, c.Influx.Port)
}
