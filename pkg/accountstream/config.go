// pkg/accountstream/config.go
package accountstream

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Account streamer endpoints.
const (
	ProductionURL = "wss://streamer.tastyworks.com"
	DemoURL       = "wss://streamer.cert.tastyworks.com"
)

// Config describes one account WebSocket session.
type Config struct {
	URL               string        `mapstructure:"url"` // overrides the Demo choice when set
	Demo              bool          `mapstructure:"demo"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	ReadLimit         int64         `mapstructure:"read_limit"`
}

func (c *Config) applyDefaults() {
	if c.URL == "" {
		c.URL = ProductionURL
		if c.Demo {
			c.URL = DemoURL
		}
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
}

func (c Config) validate() error {
	var errs []string

	u, err := url.Parse(c.URL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Sprintf("url: %v", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Sprintf("url: unsupported scheme %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, "url: host is required")
	}

	if len(errs) > 0 {
		return fmt.Errorf("accountstream: invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
