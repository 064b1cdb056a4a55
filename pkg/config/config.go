package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SHOPCLIENT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	EnvAppEnv   = "SHOPCLIENT_APP_ENV"
	EnvLogLevel = "SHOPCLIENT_LOG_LEVEL"
	EnvDBDriver = "SHOPCLIENT_DB_DRIVER"
	EnvDBDSN    = "SHOPCLIENT_DB_DSN"
	EnvDBHost   = "SHOPCLIENT_DB_HOST"
	EnvDBUser   = "SHOPCLIENT_DB_USER"
	EnvDBName   = "SHOPCLIENT_DB_NAME"

	EnvRedisEnabled = "SHOPCLIENT_REDIS_ENABLED"
	EnvRedisURL     = "SHOPCLIENT_REDIS_URL"

	EnvTxMaxWait   = "SHOPCLIENT_TX_MAX_WAIT"
	EnvTxTimeout   = "SHOPCLIENT_TX_TIMEOUT"
	EnvTxIsolation = "SHOPCLIENT_TX_ISOLATION_LEVEL"
	EnvCacheTTL    = "SHOPCLIENT_CACHE_TTL"

	defaultSQLiteDSN = "file:shopclient.db?cache=shared"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Engine   EngineConfig
	Password PasswordConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Engine.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPCLIENT_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"SHOPCLIENT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPCLIENT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	Driver      string `envconfig:"SHOPCLIENT_DB_DRIVER" default:"sqlite"`
	DSN         string `envconfig:"SHOPCLIENT_DB_DSN"`
	AutoMigrate bool   `envconfig:"SHOPCLIENT_DB_AUTO_MIGRATE" default:"false"`

	LegacyHost     string `envconfig:"SHOPCLIENT_DB_HOST"`
	LegacyPort     int    `envconfig:"SHOPCLIENT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SHOPCLIENT_DB_USER"`
	LegacyPassword string `envconfig:"SHOPCLIENT_DB_PASSWORD"`
	LegacyName     string `envconfig:"SHOPCLIENT_DB_NAME"`
	LegacySSLMode  string `envconfig:"SHOPCLIENT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPCLIENT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SHOPCLIENT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPCLIENT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPCLIENT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	Enabled      bool          `envconfig:"SHOPCLIENT_REDIS_ENABLED" default:"false"`
	URL          string        `envconfig:"SHOPCLIENT_REDIS_URL"`
	Address      string        `envconfig:"SHOPCLIENT_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPCLIENT_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPCLIENT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SHOPCLIENT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SHOPCLIENT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SHOPCLIENT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPCLIENT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPCLIENT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// EngineConfig holds the defaults applied to transactions and the result cache.
type EngineConfig struct {
	TxMaxWait      time.Duration `envconfig:"SHOPCLIENT_TX_MAX_WAIT" default:"2s"`
	TxTimeout      time.Duration `envconfig:"SHOPCLIENT_TX_TIMEOUT" default:"5s"`
	IsolationLevel string        `envconfig:"SHOPCLIENT_TX_ISOLATION_LEVEL"`
	CacheTTL       time.Duration `envconfig:"SHOPCLIENT_CACHE_TTL" default:"1m"`
}

// PasswordConfig sets the Argon2id cost of stored user passwords.
type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"SHOPCLIENT_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"SHOPCLIENT_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"SHOPCLIENT_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"SHOPCLIENT_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"SHOPCLIENT_ARGON_KEY_LEN" default:"32"`
}

var isolationLevels = []string{"", "ReadUncommitted", "ReadCommitted", "RepeatableRead", "Serializable"}

func (e EngineConfig) validate() error {
	if e.TxMaxWait <= 0 {
		return fmt.Errorf("%s must be positive", EnvTxMaxWait)
	}
	if e.TxTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvTxTimeout)
	}
	for _, level := range isolationLevels {
		if level == e.IsolationLevel {
			return nil
		}
	}
	return fmt.Errorf("%s: unsupported isolation level %q", EnvTxIsolation, e.IsolationLevel)
}

func (db *DBConfig) ensureDSN() error {
	switch db.Driver {
	case DriverMemory:
		return nil
	case DriverSQLite:
		if db.DSN == "" {
			db.DSN = defaultSQLiteDSN
		}
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("%s: unsupported driver %q", EnvDBDriver, db.Driver)
	}

	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
