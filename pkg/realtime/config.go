package realtime

import "time"

// Defaults applied by NewClient to zero-valued Config fields.
const (
	DefaultReconnectInterval    = time.Second
	DefaultMaxReconnectDelay    = 30 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultMessageTimeout       = 10 * time.Second
	DefaultMaxAckRetries        = 3
	DefaultMaxOfflineMessages   = 100
	DefaultDrainDelay           = 100 * time.Millisecond
	DefaultWriteTimeout         = 10 * time.Second
	DefaultDialTimeout          = 10 * time.Second
)

// Config defines the client runtime configuration. It is immutable once the
// client is built. Start from DefaultConfig; zero durations and counts are
// replaced by defaults, negative ones disable the feature. EnableOfflineQueue
// is taken as given, so a zero Config runs without the offline queue.
type Config struct {
	Dialer    Dialer
	Scheduler Scheduler

	// ReconnectInterval is the base unit of the exponential backoff.
	ReconnectInterval    time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int
	HeartbeatInterval    time.Duration
	// MessageTimeout is the ack deadline of a message.
	MessageTimeout time.Duration
	MaxAckRetries  int

	EnableOfflineQueue bool
	MaxOfflineMessages int
	// DrainDelay spaces the messages flushed from the offline queue.
	DrainDelay time.Duration

	WriteTimeout time.Duration
	DialTimeout  time.Duration
}

// DefaultConfig returns a config with the offline queue enabled and every
// default applied.
func DefaultConfig(d Dialer) Config {
	return Config{
		Dialer:               d,
		Scheduler:            SystemScheduler(),
		ReconnectInterval:    DefaultReconnectInterval,
		MaxReconnectDelay:    DefaultMaxReconnectDelay,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		HeartbeatInterval:    DefaultHeartbeatInterval,
		MessageTimeout:       DefaultMessageTimeout,
		MaxAckRetries:        DefaultMaxAckRetries,
		EnableOfflineQueue:   true,
		MaxOfflineMessages:   DefaultMaxOfflineMessages,
		DrainDelay:           DefaultDrainDelay,
		WriteTimeout:         DefaultWriteTimeout,
		DialTimeout:          DefaultDialTimeout,
	}
}

func (cfg Config) withDefaults() Config {
	if cfg.Scheduler == nil {
		cfg.Scheduler = SystemScheduler()
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	if cfg.MaxReconnectDelay <= 0 {
		cfg.MaxReconnectDelay = DefaultMaxReconnectDelay
	}
	switch {
	case cfg.MaxReconnectAttempts == 0:
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	case cfg.MaxReconnectAttempts < 0:
		cfg.MaxReconnectAttempts = 0
	}
	switch {
	case cfg.HeartbeatInterval == 0:
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	case cfg.HeartbeatInterval < 0:
		cfg.HeartbeatInterval = 0
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = DefaultMessageTimeout
	}
	switch {
	case cfg.MaxAckRetries == 0:
		cfg.MaxAckRetries = DefaultMaxAckRetries
	case cfg.MaxAckRetries < 0:
		cfg.MaxAckRetries = 0
	}
	if cfg.MaxOfflineMessages <= 0 {
		cfg.MaxOfflineMessages = DefaultMaxOfflineMessages
	}
	if cfg.DrainDelay < 0 {
		cfg.DrainDelay = 0
	} else if cfg.DrainDelay == 0 {
		cfg.DrainDelay = DefaultDrainDelay
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return cfg
}

// Backoff returns the reconnect backoff derived from the config.
func (cfg Config) Backoff() Backoff {
	return Backoff{
		Base:   cfg.ReconnectInterval,
		Max:    cfg.MaxReconnectDelay,
		Factor: 2.0,
	}
}
