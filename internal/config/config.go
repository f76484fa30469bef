// internal/config/config.go
package config

import (
	"fmt"
	"reflect"

	"github.com/YaganovValera/tasty-streamer/common/configloader"
	"github.com/YaganovValera/tasty-streamer/common/httpserver"
	producer "github.com/YaganovValera/tasty-streamer/common/kafka/producer"
	"github.com/YaganovValera/tasty-streamer/common/logger"
	"github.com/YaganovValera/tasty-streamer/common/telemetry"
	"github.com/YaganovValera/tasty-streamer/pkg/accountstream"
	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
	"github.com/YaganovValera/tasty-streamer/pkg/quotestream"
	"github.com/YaganovValera/tasty-streamer/pkg/symbolcache"
	"github.com/YaganovValera/tasty-streamer/pkg/tastytrade"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TASTY_STREAMER"

// Config is the relay service configuration.
type Config struct {
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`

	Credentials   Credentials          `mapstructure:"credentials"`
	Tastytrade    tastytrade.Config    `mapstructure:"tastytrade"`
	Accounts      []string             `mapstructure:"accounts"`
	AccountStream accountstream.Config `mapstructure:"account_stream"`
	Quotes        QuotesConfig         `mapstructure:"quotes"`
	Redis         symbolcache.Config   `mapstructure:"redis"`
	Kafka         KafkaConfig          `mapstructure:"kafka"`
	Logging       logger.Config        `mapstructure:"logging"`
	Telemetry     telemetry.Config     `mapstructure:"telemetry"`
	HTTP          httpserver.Config    `mapstructure:"http"`
}

// Credentials authenticate the REST session. A session token skips login.
type Credentials struct {
	Login        string `mapstructure:"login"`
	Password     string `mapstructure:"password" json:"-"`
	SessionToken string `mapstructure:"session_token" json:"-"`
	RememberMe   bool   `mapstructure:"remember_me"`
}

// QuotesConfig selects the market-data subscription.
type QuotesConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Events is decoded from a list of names, e.g. ["Quote", "Greeks"].
	Events dxfeed.EventType `mapstructure:"events"`
	// Symbols are vendor symbols added as is.
	Symbols []string `mapstructure:"symbols"`
	// Instruments are "<instrument type>:<symbol>" pairs resolved through
	// the REST API, e.g. "Equity Option:AAPL  241220C00150000".
	Instruments []quotestream.Instrument `mapstructure:"instruments"`
	// OptionChains are underlyings whose option symbols are subscribed,
	// limited to the nearest ChainExpirations expirations (0 means all).
	OptionChains     []string `mapstructure:"option_chains"`
	ChainExpirations int      `mapstructure:"chain_expirations"`
}

// KafkaConfig enables the Kafka sink when Brokers is not empty.
type KafkaConfig struct {
	producer.Config `mapstructure:",squash"`
	QuoteTopic      string `mapstructure:"quote_topic"`
	AccountTopic    string `mapstructure:"account_topic"`
}

// Enabled reports whether events go to Kafka.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// RedisEnabled reports whether symbol lookups are cached.
func (c *Config) RedisEnabled() bool { return c.Redis.Addr != "" }

func registerDefaults() {
	configloader.RegisterDefaults("service_name", "tasty-streamer")
	configloader.RegisterDefaults("service_version", "")

	configloader.RegisterDefaults("credentials.login", "")
	configloader.RegisterDefaults("credentials.password", "")
	configloader.RegisterDefaults("credentials.session_token", "")
	configloader.RegisterDefaults("credentials.remember_me", false)

	configloader.RegisterDefaults("tastytrade.demo", false)
	configloader.RegisterDefaults("tastytrade.base_url", "")
	configloader.RegisterDefaults("tastytrade.timeout", "15s")
	configloader.RegisterDefaults("accounts", []string{})

	configloader.RegisterDefaults("account_stream.url", "")
	configloader.RegisterDefaults("account_stream.heartbeat_interval", "30s")

	configloader.RegisterDefaults("quotes.enabled", false)
	configloader.RegisterDefaults("quotes.events", []string{"Quote"})
	configloader.RegisterDefaults("quotes.symbols", []string{})
	configloader.RegisterDefaults("quotes.instruments", []string{})
	configloader.RegisterDefaults("quotes.option_chains", []string{})
	configloader.RegisterDefaults("quotes.chain_expirations", 1)

	configloader.RegisterDefaults("redis.addr", "")
	configloader.RegisterDefaults("redis.password", "")
	configloader.RegisterDefaults("redis.db", 0)
	configloader.RegisterDefaults("redis.ttl", "24h")

	configloader.RegisterDefaults("kafka.brokers", []string{})
	configloader.RegisterDefaults("kafka.required_acks", "all")
	configloader.RegisterDefaults("kafka.timeout", "15s")
	configloader.RegisterDefaults("kafka.compression", "none")
	configloader.RegisterDefaults("kafka.quote_topic", "tasty.quotes")
	configloader.RegisterDefaults("kafka.account_topic", "tasty.account")

	configloader.RegisterDefaults("logging.level", "info")
	configloader.RegisterDefaults("logging.dev_mode", false)
	configloader.RegisterDefaults("logging.file.path", "")

	configloader.RegisterDefaults("telemetry.endpoint", "")
	configloader.RegisterDefaults("telemetry.insecure", true)

	configloader.RegisterDefaults("http.addr", ":8080")
	configloader.RegisterDefaults("http.read_timeout", "10s")
	configloader.RegisterDefaults("http.write_timeout", "15s")
	configloader.RegisterDefaults("http.idle_timeout", "60s")
	configloader.RegisterDefaults("http.shutdown_timeout", "5s")
	configloader.RegisterDefaults("http.metrics_path", "/metrics")
	configloader.RegisterDefaults("http.healthz_path", "/healthz")
	configloader.RegisterDefaults("http.readyz_path", "/readyz")
}

// Load reads defaults, the optional YAML file at path and TASTY_STREAMER_*
// environment variables, then validates the result.
func Load(path string) (*Config, error) {
	configloader.ResetDefaults()
	registerDefaults()

	var cfg Config
	if err := configloader.Load(path, EnvPrefix, &cfg, eventTypeHook); err != nil {
		return nil, err
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = cfg.ServiceName
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = cfg.ServiceVersion
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	cr := c.Credentials
	if cr.SessionToken == "" && (cr.Login == "" || cr.Password == "") {
		return fmt.Errorf("credentials: login and password, or session_token, are required")
	}
	if c.Quotes.Enabled {
		if c.Quotes.Events == 0 {
			return fmt.Errorf("quotes.events: at least one event type is required")
		}
		for _, in := range c.Quotes.Instruments {
			if in.Type == "" || in.Symbol == "" {
				return fmt.Errorf("quotes.instruments: %q is not <type>:<symbol>", in)
			}
		}
		if len(c.Quotes.Symbols) == 0 && len(c.Quotes.Instruments) == 0 && len(c.Quotes.OptionChains) == 0 {
			return fmt.Errorf("quotes: symbols, instruments or option_chains are required")
		}
		if c.Quotes.ChainExpirations < 0 {
			return fmt.Errorf("quotes.chain_expirations must not be negative")
		}
	}
	if c.Kafka.Enabled() && (c.Kafka.QuoteTopic == "" || c.Kafka.AccountTopic == "") {
		return fmt.Errorf("kafka: quote_topic and account_topic are required")
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}

var eventTypeOf = reflect.TypeOf(dxfeed.EventType(0))

// eventTypeHook builds quotes.events from a YAML list or a comma separated
// env value.
func eventTypeHook(_, t reflect.Type, data interface{}) (interface{}, error) {
	if t != eventTypeOf {
		return data, nil
	}
	var names []string
	switch v := data.(type) {
	case string:
		names = configloader.SplitList(v)
	case []string:
		names = v
	case []interface{}:
		for _, n := range v {
			names = append(names, fmt.Sprint(n))
		}
	default:
		return data, nil
	}
	flags, err := dxfeed.ParseEventTypes(names)
	if err != nil {
		return nil, fmt.Errorf("quotes.events: %w", err)
	}
	return flags, nil
}
