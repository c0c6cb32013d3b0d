package journal

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultHost         = "localhost"
	defaultPort         = 5432
	defaultSSLMode      = "disable"
	defaultAppName      = "rideway-journal"
	defaultMaxOpenConns = 2
	defaultMaxIdleConns = 2
	defaultConnLifetime = 30 * time.Minute
)

// Option is the journal database section of the rider config. The journal
// writes from a single goroutine, so the pool stays small.
type Option struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"sslMode"`
	AppName  string `json:"appName"`
	// URL overrides every connection field above when set.
	URL string `json:"url"`

	MaxOpenConns       int `json:"maxOpenConns"`
	MaxIdleConns       int `json:"maxIdleConns"`
	ConnMaxLifetimeSec int `json:"connMaxLifetimeSec"`
}

// Enabled reports whether a database was configured at all.
func (opt Option) Enabled() bool {
	return opt.URL != "" || opt.Host != "" || opt.Database != ""
}

// Open connects the journal database and checks it is reachable before ctx
// expires.
func Open(ctx context.Context, opt Option) (*gorm.DB, error) {
	dsn, err := opt.connInfo()
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open journal db")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "journal sql db")
	}
	open, idle, lifetime := opt.pool()
	sqlDB.SetMaxOpenConns(open)
	sqlDB.SetMaxIdleConns(idle)
	sqlDB.SetConnMaxLifetime(lifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "ping journal db").With("host", opt.Host)
	}
	return db, nil
}

// Close closes the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt Option) pool() (open, idle int, lifetime time.Duration) {
	open, idle, lifetime = defaultMaxOpenConns, defaultMaxIdleConns, defaultConnLifetime
	if opt.MaxOpenConns > 0 {
		open = opt.MaxOpenConns
	}
	if opt.MaxIdleConns > 0 {
		idle = opt.MaxIdleConns
	}
	if idle > open {
		idle = open
	}
	if opt.ConnMaxLifetimeSec > 0 {
		lifetime = time.Duration(opt.ConnMaxLifetimeSec) * time.Second
	}
	return open, idle, lifetime
}

// connInfo builds a libpq keyword/value string.
func (opt Option) connInfo() (string, error) {
	if opt.URL != "" {
		return opt.URL, nil
	}

	port := opt.Port
	if port == 0 {
		port = defaultPort
	}
	if port < 0 || port > 65535 {
		return "", errors.Errorf("invalid journal db port %d", port)
	}

	var sb strings.Builder
	add := func(key, value string) {
		if value == "" {
			return
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(quoteConnValue(value))
	}
	add("host", or(opt.Host, defaultHost))
	add("port", strconv.Itoa(port))
	add("user", opt.User)
	add("password", opt.Password)
	add("dbname", opt.Database)
	add("sslmode", or(opt.SSLMode, defaultSSLMode))
	add("application_name", or(opt.AppName, defaultAppName))
	return sb.String(), nil
}

func quoteConnValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
