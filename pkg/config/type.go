package config

type Config struct {
	Portal   PortalConfig   `toml:"portal" mapstructure:"portal"`
	Mqtt     MqttConfig     `toml:"mqtt" mapstructure:"mqtt"`
	Publish  PublishConfig  `toml:"publish" mapstructure:"publish"`
	Hass     HassConfig     `toml:"hass" mapstructure:"hass"`
	Database DatabaseConfig `toml:"database" mapstructure:"database"`
	Influx   InfluxConfig   `toml:"influx" mapstructure:"influx"`
	Prices   PricesConfig   `toml:"prices" mapstructure:"prices"`
	Run      RunConfig      `toml:"run" mapstructure:"run"`
}

type PortalConfig struct {
	Username string `toml:"username" mapstructure:"username"`
	Password string `toml:"password" mapstructure:"password"`
	// First day to request measures for, YYYY-MM-DD.
	// The portal serves at most 3 years of history.
	StartDate string `toml:"start_date" mapstructure:"start_date"`
}

type MqttConfig struct {
	Host     string `toml:"host" mapstructure:"host"`
	Port     int    `toml:"port" mapstructure:"port"`
	ClientID string `toml:"client_id" mapstructure:"client_id"`
	Username string `toml:"username" mapstructure:"username"`
	Password string `toml:"password" mapstructure:"password"`
	Qos      int    `toml:"qos" mapstructure:"qos"`
	Retain   bool   `toml:"retain" mapstructure:"retain"`
	Ssl      bool   `toml:"ssl" mapstructure:"ssl"`
	Topic    string `toml:"topic" mapstructure:"topic"`
}

type PublishConfig struct {
	Standalone      bool   `toml:"standalone" mapstructure:"standalone"`
	Discovery       bool   `toml:"discovery" mapstructure:"discovery"`
	DiscoveryPrefix string `toml:"discovery_prefix" mapstructure:"discovery_prefix"`
	DeviceName      string `toml:"device_name" mapstructure:"device_name"`
}

type HassConfig struct {
	Lts           bool   `toml:"lts" mapstructure:"lts"`
	LtsDelete     bool   `toml:"lts_delete" mapstructure:"lts_delete"`
	Host          string `toml:"host" mapstructure:"host"`
	Token         string `toml:"token" mapstructure:"token"`
	StatisticsURI string `toml:"statistics_uri" mapstructure:"statistics_uri"`
	Ssl           bool   `toml:"ssl" mapstructure:"ssl"`
	// Skip certificate verification, for instances behind a TLS gateway.
	SslGateway  bool   `toml:"ssl_gateway" mapstructure:"ssl_gateway"`
	SslCertfile string `toml:"ssl_certfile" mapstructure:"ssl_certfile"`
	SslKeyfile  string `toml:"ssl_keyfile" mapstructure:"ssl_keyfile"`
}

type DatabaseConfig struct {
	Path   string `toml:"path" mapstructure:"path"`
	Reinit bool   `toml:"reinit" mapstructure:"reinit"`
}

type InfluxConfig struct {
	Enable bool   `toml:"enable" mapstructure:"enable"`
	Host   string `toml:"host" mapstructure:"host"`
	Port   int    `toml:"port" mapstructure:"port"`
	Org    string `toml:"org" mapstructure:"org"`
	Bucket string `toml:"bucket" mapstructure:"bucket"`
	Token  string `toml:"token" mapstructure:"token"`
	// Consecutive failed writes before a series is abandoned.
	MaxErrors int `toml:"max_errors" mapstructure:"max_errors"`
}

type PricesConfig struct {
	// Directory holding prices.yaml
	Path       string  `toml:"path" mapstructure:"path"`
	KwhDefault float64 `toml:"kwh_default" mapstructure:"kwh_default"`
	FixDefault float64 `toml:"fix_default" mapstructure:"fix_default"`
}

type RunConfig struct {
	// Daily run time, HH:MM. Empty runs once and exits.
	ScheduleTime        string `toml:"schedule_time" mapstructure:"schedule_time"`
	Debug               bool   `toml:"debug" mapstructure:"debug"`
	ThresholdPercentage int    `toml:"threshold_percentage" mapstructure:"threshold_percentage"`
	WeekStart           string `toml:"week_start" mapstructure:"week_start"`
	// Empty disables the /metrics listener.
	MetricsAddress string `toml:"metrics_address" mapstructure:"metrics_address"`
}
