package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	ReplicationPeers = "peers"
	ReplicationAMQP  = "amqp"
	ReplicationBoth  = "both"
)

type Config struct {
	NodeID string `mapstructure:"node_id"`

	DB       DBconfig       `mapstructure:",squash"`
	RabbitMq RabbitMqconfig `mapstructure:",squash"`
	Srv      Serviceconfig  `mapstructure:",squash"`
	Sync     Syncconfig     `mapstructure:",squash"`
	Session  Sessionconfig  `mapstructure:",squash"`
	Log      Loggerconfig   `mapstructure:",squash"`
}

type DBconfig struct {
	Store    string `mapstructure:"store"`
	Host     string `mapstructure:"db_host"`
	Port     int    `mapstructure:"db_port"`
	User     string `mapstructure:"db_user"`
	Password string `mapstructure:"db_password"`
	Database string `mapstructure:"db_name"`
	MaxConns int32  `mapstructure:"db_max_conns"`
}

type RabbitMqconfig struct {
	Host     string `mapstructure:"rabbitmq_host"`
	Port     int    `mapstructure:"rabbitmq_port"`
	User     string `mapstructure:"rabbitmq_user"`
	Password string `mapstructure:"rabbitmq_password"`
	VHost    string `mapstructure:"rabbitmq_vhost"`
}

type Serviceconfig struct {
	DispatchPort  int    `mapstructure:"dispatch_port"`
	DriverPort    int    `mapstructure:"driver_port"`
	DriverAPIPort int    `mapstructure:"driver_api_port"`
	DriverWSPort  int    `mapstructure:"driver_ws_port"`
	DBServicePort int    `mapstructure:"db_service_port"`
	DriverHost    string `mapstructure:"driver_service_host"`
	DBServiceHost string `mapstructure:"db_service_host"`

	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type Syncconfig struct {
	Peers             []string      `mapstructure:"sync_db_hosts"`
	DiscoveryEnabled  bool          `mapstructure:"discovery_enabled"`
	DiscoveryPort     int           `mapstructure:"discovery_port"`
	DiscoveryInterval time.Duration `mapstructure:"discovery_interval"`
	ReplicationMode   string        `mapstructure:"replication_mode"`
}

type Sessionconfig struct {
	Secret string        `mapstructure:"session_secret"`
	TTL    time.Duration `mapstructure:"session_ttl"`
}

type Loggerconfig struct {
	Level string `mapstructure:"log_level"`
}

var defaults = map[string]any{
	"node_id":   "",
	"log_level": "INFO",

	"store":        StorePostgres,
	"db_host":      "localhost",
	"db_port":      5432,
	"db_user":      "rideshare_user",
	"db_password":  "rideshare_pass",
	"db_name":      "rideshare_db",
	"db_max_conns": 16,

	"rabbitmq_host":     "localhost",
	"rabbitmq_port":     5672,
	"rabbitmq_user":     "guest",
	"rabbitmq_password": "guest",
	"rabbitmq_vhost":    "",

	"dispatch_port":       5000,
	"driver_port":         5001,
	"db_service_port":     5002,
	"driver_api_port":     5003,
	"driver_ws_port":      5004,
	"driver_service_host": "localhost",
	"db_service_host":     "localhost",
	"read_timeout":        "5m",
	"write_timeout":       "10s",
	"request_timeout":     "10s",

	"sync_db_hosts":      "",
	"discovery_enabled":  true,
	"discovery_port":     8888,
	"discovery_interval": "5s",
	"replication_mode":   ReplicationPeers,

	"session_secret": "change-me",
	"session_ttl":    "12h",
}

// Load reads defaults, then the optional properties file, then the environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("properties")
		if err := v.ReadInConfig(); err != nil {
			var notFound *os.PathError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()

	cfg := &Config{}
	decoderConfigOption := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err := v.Unmarshal(cfg, decoderConfigOption); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	cfg.Sync.Peers = cleanList(cfg.Sync.Peers)
	if cfg.NodeID == "" {
		cfg.NodeID, _ = os.Hostname()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	switch c.DB.Store {
	case StoreMemory, StorePostgres:
	default:
		problems = append(problems, fmt.Sprintf("unknown store %q", c.DB.Store))
	}

	switch c.Sync.ReplicationMode {
	case ReplicationPeers, ReplicationAMQP, ReplicationBoth:
	default:
		problems = append(problems, fmt.Sprintf("unknown replication mode %q", c.Sync.ReplicationMode))
	}

	ports := map[string]int{
		"dispatch_port":   c.Srv.DispatchPort,
		"driver_port":     c.Srv.DriverPort,
		"driver_api_port": c.Srv.DriverAPIPort,
		"db_service_port": c.Srv.DBServicePort,
		"discovery_port":  c.Sync.DiscoveryPort,
	}
	for name, p := range ports {
		if p <= 0 || p > 65535 {
			problems = append(problems, fmt.Sprintf("%s out of range: %d", name, p))
		}
	}
	if c.Srv.DriverWSPort < 0 || c.Srv.DriverWSPort > 65535 {
		problems = append(problems, fmt.Sprintf("driver_ws_port out of range: %d", c.Srv.DriverWSPort))
	}
	if c.DB.MaxConns <= 0 {
		problems = append(problems, "db_max_conns must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) DBServiceAddr() string {
	return fmt.Sprintf("%s:%d", c.Srv.DBServiceHost, c.Srv.DBServicePort)
}

func (c *Config) DriverAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Srv.DriverHost, c.Srv.DriverAPIPort)
}

// DriverWSURL is where websocket drivers connect.
func (c *Config) DriverWSURL() string {
	return fmt.Sprintf("ws://%s:%d/ws/drivers", c.Srv.DriverHost, c.Srv.DriverWSPort)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
