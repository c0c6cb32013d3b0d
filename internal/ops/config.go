package ops

import (
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/yanun0323/errors"

	"rideway/internal/journal"
	"rideway/pkg/exception"
	"rideway/pkg/realtime"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Hub     HubConfig     `json:"hub"`
	Client  ClientConfig  `json:"client"`
	Driver  DriverConfig  `json:"driver"`
	Journal JournalConfig `json:"journal"`
	Report  ReportConfig  `json:"report"`
}

// HubConfig describes where the client connects and where the dev hub listens.
type HubConfig struct {
	URL              string   `json:"url"`
	Listen           string   `json:"listen"`
	LegacyQueryAuth  bool     `json:"legacyQueryAuth"`
	HandshakeTimeout Duration `json:"handshakeTimeout"`
}

// ClientConfig overrides realtime client defaults. Zero values keep the default.
type ClientConfig struct {
	ReconnectInterval    Duration `json:"reconnectInterval"`
	MaxReconnectDelay    Duration `json:"maxReconnectDelay"`
	MaxReconnectAttempts int      `json:"maxReconnectAttempts"`
	HeartbeatInterval    Duration `json:"heartbeatInterval"`
	MessageTimeout       Duration `json:"messageTimeout"`
	MaxAckRetries        int      `json:"maxAckRetries"`
	EnableOfflineQueue   *bool    `json:"enableOfflineQueue"`
	MaxOfflineMessages   int      `json:"maxOfflineMessages"`
	DrainDelay           Duration `json:"drainDelay"`
	WriteTimeout         Duration `json:"writeTimeout"`
	DialTimeout          Duration `json:"dialTimeout"`
}

// DriverConfig configures location streaming.
type DriverConfig struct {
	LocationInterval Duration `json:"locationInterval"`
	SampleTimeout    Duration `json:"sampleTimeout"`
}

// JournalConfig enables the booking journal when a database is set.
type JournalConfig struct {
	journal.Option
	QueueSize int `json:"queueSize"`
}

// ReportConfig controls the periodic stats log line.
type ReportConfig struct {
	Interval Duration `json:"interval"`
}

// Duration accepts either a Go duration string ("1.5s") or a number of
// milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return errors.Wrap(err, "parse duration").With("value", s)
		}
		*d = Duration(parsed)
		return nil
	}
	ms, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return errors.Wrap(err, "parse duration millis").With("value", string(b))
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

const (
	DefaultLocationInterval = 5 * time.Second
	DefaultReportInterval   = 15 * time.Second
	DefaultListen           = ":8080"
)

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	HubURL   string
	Listen   string
	Dialer   *realtime.WebsocketDialer
	Realtime realtime.Config
	Driver   DriverOptions
	Journal  JournalConfig
	Report   time.Duration
}

// DriverOptions is the resolved driver section.
type DriverOptions struct {
	LocationInterval time.Duration
	SampleTimeout    time.Duration
}

// Load reads a JSON config file and resolves it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config").With("path", path)
	}
	return Parse(data)
}

// Parse resolves a JSON config document.
func Parse(data []byte) (Loaded, error) {
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "decode config")
	}
	return Resolve(cfg)
}

// Resolve validates cfg and fills defaults.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Hub.URL == "" {
		return Loaded{}, exception.ErrConfigMissingURL
	}

	dialer := realtime.NewWebsocketDialer(cfg.Hub.URL)
	dialer.LegacyQueryAuth = cfg.Hub.LegacyQueryAuth
	if cfg.Hub.HandshakeTimeout > 0 {
		dialer.HandshakeTimeout = cfg.Hub.HandshakeTimeout.Std()
	}

	listen := cfg.Hub.Listen
	if listen == "" {
		listen = DefaultListen
	}

	driver := DriverOptions{
		LocationInterval: cfg.Driver.LocationInterval.Std(),
		SampleTimeout:    cfg.Driver.SampleTimeout.Std(),
	}
	if driver.LocationInterval <= 0 {
		driver.LocationInterval = DefaultLocationInterval
	}

	report := cfg.Report.Interval.Std()
	if report == 0 {
		report = DefaultReportInterval
	}

	return Loaded{
		HubURL:   cfg.Hub.URL,
		Listen:   listen,
		Dialer:   dialer,
		Realtime: resolveClient(cfg.Client, dialer),
		Driver:   driver,
		Journal:  cfg.Journal,
		Report:   report,
	}, nil
}

func resolveClient(cfg ClientConfig, d realtime.Dialer) realtime.Config {
	rc := realtime.DefaultConfig(d)
	if cfg.ReconnectInterval != 0 {
		rc.ReconnectInterval = cfg.ReconnectInterval.Std()
	}
	if cfg.MaxReconnectDelay != 0 {
		rc.MaxReconnectDelay = cfg.MaxReconnectDelay.Std()
	}
	if cfg.MaxReconnectAttempts != 0 {
		rc.MaxReconnectAttempts = cfg.MaxReconnectAttempts
	}
	if cfg.HeartbeatInterval != 0 {
		rc.HeartbeatInterval = cfg.HeartbeatInterval.Std()
	}
	if cfg.MessageTimeout != 0 {
		rc.MessageTimeout = cfg.MessageTimeout.Std()
	}
	if cfg.MaxAckRetries != 0 {
		rc.MaxAckRetries = cfg.MaxAckRetries
	}
	if cfg.EnableOfflineQueue != nil {
		rc.EnableOfflineQueue = *cfg.EnableOfflineQueue
	}
	if cfg.MaxOfflineMessages != 0 {
		rc.MaxOfflineMessages = cfg.MaxOfflineMessages
	}
	if cfg.DrainDelay != 0 {
		rc.DrainDelay = cfg.DrainDelay.Std()
	}
	if cfg.WriteTimeout != 0 {
		rc.WriteTimeout = cfg.WriteTimeout.Std()
	}
	if cfg.DialTimeout != 0 {
		rc.DialTimeout = cfg.DialTimeout.Std()
	}
	return rc
}
