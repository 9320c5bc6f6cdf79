// Package config loads client configuration from a file and the environment.
package config

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. IMCLIENT_SESSION_TOKEN.
const EnvPrefix = "IMCLIENT"

const (
	TransportGorilla = "gorilla"
	TransportGobwas  = "gobwas"
)

// Config is the full client configuration.
type Config struct {
	Session Session     `mapstructure:"session"`
	Log     LogConf     `mapstructure:"log"`
	Metrics MetricsConf `mapstructure:"metrics"`
	NATS    NatsConf    `mapstructure:"nats"`
}

// Session holds everything needed to open one gateway session.
type Session struct {
	WSAddr       string `mapstructure:"wsAddr"`
	UserID       string `mapstructure:"userID"`
	Token        string `mapstructure:"token"`
	PlatformID   int32  `mapstructure:"platformID"`
	SDKType      string `mapstructure:"sdkType"`
	IsBackground bool   `mapstructure:"isBackground"`
	Transport    string `mapstructure:"transport"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeatInterval"`
	ReadTimeout       time.Duration `mapstructure:"readTimeout"`
	WriteTimeout      time.Duration `mapstructure:"writeTimeout"`
	HandshakeTimeout  time.Duration `mapstructure:"handshakeTimeout"`
	RequestTimeout    time.Duration `mapstructure:"requestTimeout"`

	OutboundBuffer int `mapstructure:"outboundBuffer"`
	DedupCapacity  int `mapstructure:"dedupCapacity"`

	// MaxFrameSize caps both the raw websocket payload and its inflated form.
	MaxFrameSize int64 `mapstructure:"maxFrameSize"`
}

type LogConf struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConf configures the admin HTTP listener. An empty Addr disables it.
type MetricsConf struct {
	Addr string `mapstructure:"addr"`
}

// NatsConf configures the relay sink. An empty URL disables it.
type NatsConf struct {
	URL           string `json:"url" mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subjectPrefix"`
}

// Supplier provides the session configuration at connect time.
type Supplier interface {
	SessionConfig() (Session, error)
}

// Static is a Supplier returning a fixed configuration.
type Static Session

// SessionConfig implements Supplier.
func (s Static) SessionConfig() (Session, error) {
	cfg := Session(s)
	return cfg, cfg.Validate()
}

// SessionConfig implements Supplier.
func (c *Config) SessionConfig() (Session, error) {
	return c.Session, c.Session.Validate()
}

// Default returns the session defaults used when a value is not configured.
func Default() Session {
	return Session{
		SDKType:           "js",
		Transport:         TransportGorilla,
		HeartbeatInterval: 25 * time.Second,
		ReadTimeout:       90 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		RequestTimeout:    10 * time.Second,
		OutboundBuffer:    64,
		DedupCapacity:     8192,
		MaxFrameSize:      16 << 20,
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("session.wsAddr", "ws://127.0.0.1:10001")
	v.SetDefault("session.userID", "")
	v.SetDefault("session.token", "")
	v.SetDefault("session.platformID", 5)
	v.SetDefault("session.sdkType", d.SDKType)
	v.SetDefault("session.isBackground", false)
	v.SetDefault("session.transport", d.Transport)
	v.SetDefault("session.heartbeatInterval", d.HeartbeatInterval)
	v.SetDefault("session.readTimeout", d.ReadTimeout)
	v.SetDefault("session.writeTimeout", d.WriteTimeout)
	v.SetDefault("session.handshakeTimeout", d.HandshakeTimeout)
	v.SetDefault("session.requestTimeout", d.RequestTimeout)
	v.SetDefault("session.outboundBuffer", d.OutboundBuffer)
	v.SetDefault("session.dedupCapacity", d.DedupCapacity)
	v.SetDefault("session.maxFrameSize", d.MaxFrameSize)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subjectPrefix", "imclient.msg")
}

// Load reads configFile (optional) and applies IMCLIENT_* overrides.
func Load(configFile string) (*Config, error) {
	return LoadWith(viper.New(), configFile)
}

// LoadWith is Load on a caller-provided viper instance, so command-line
// flags bound to v take precedence.
func LoadWith(v *viper.Viper, configFile string) (*Config, error) {
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config %s", configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	return &cfg, nil
}

// Validate rejects configurations the gateway would refuse or the session
// cannot run with.
func (s Session) Validate() error {
	switch {
	case s.WSAddr == "":
		return errors.New("config: wsAddr is required")
	case s.UserID == "":
		return errors.New("config: userID is required")
	case s.Token == "":
		return errors.New("config: token is required")
	case s.SDKType == "":
		return errors.New("config: sdkType is required")
	case s.HeartbeatInterval <= 0:
		return errors.New("config: heartbeatInterval must be positive")
	case s.OutboundBuffer <= 0:
		return errors.New("config: outboundBuffer must be positive")
	}
	switch s.Transport {
	case "", TransportGorilla, TransportGobwas:
	default:
		return errors.Errorf("config: unknown transport %q", s.Transport)
	}

	u, err := url.Parse(s.WSAddr)
	if err != nil {
		return errors.Wrap(err, "config: invalid wsAddr")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.Errorf("config: wsAddr scheme must be ws or wss, got %q", u.Scheme)
	}
	return nil
}

// URL builds the gateway endpoint. Parameter order is fixed because some
// gateways log the raw query.
func (s Session) URL(operationID string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSuffix(s.WSAddr, "/"))
	b.WriteString("/?token=")
	b.WriteString(url.QueryEscape(s.Token))
	b.WriteString("&sendID=")
	b.WriteString(url.QueryEscape(s.UserID))
	b.WriteString("&platformID=")
	b.WriteString(strconv.FormatInt(int64(s.PlatformID), 10))
	b.WriteString("&operationID=")
	b.WriteString(url.QueryEscape(operationID))
	b.WriteString("&compression=gzip")
	b.WriteString("&isBackground=")
	b.WriteString(strconv.FormatBool(s.IsBackground))
	b.WriteString("&isMsgResp=true")
	b.WriteString("&sdkType=")
	b.WriteString(url.QueryEscape(s.SDKType))
	return b.String()
}
