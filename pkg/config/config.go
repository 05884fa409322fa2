package config

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// DateLayout is the calendar format used for the date dimension bounds.
const DateLayout = "2006-01-02"

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Warehouse WarehouseConfig
	Metrics   MetricsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPDW_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"SHOPDW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPDW_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"SHOPDW_LOG_FORMAT"`
}

// ResolvedLogFormat returns the configured log format, defaulting to console
// output in dev and JSON elsewhere.
func (a AppConfig) ResolvedLogFormat() string {
	if format := strings.ToLower(strings.TrimSpace(a.LogFormat)); format != "" {
		return format
	}
	if a.IsDev() {
		return LogFormatConsole
	}
	return LogFormatJSON
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"SHOPDW_DB_DSN"`

	Host     string `envconfig:"SHOPDW_DB_HOST"`
	Port     int    `envconfig:"SHOPDW_DB_PORT" default:"5432"`
	User     string `envconfig:"SHOPDW_DB_USER"`
	Password string `envconfig:"SHOPDW_DB_PASSWORD"`
	Name     string `envconfig:"SHOPDW_DB_NAME"`
	SSLMode  string `envconfig:"SHOPDW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SHOPDW_DB_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns    int           `envconfig:"SHOPDW_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"SHOPDW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SHOPDW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// RedisConfig is only consulted when the single-writer lock is enabled.
type RedisConfig struct {
	URL          string        `envconfig:"SHOPDW_REDIS_URL"`
	Address      string        `envconfig:"SHOPDW_REDIS_ADDR"`
	Password     string        `envconfig:"SHOPDW_REDIS_PASSWORD"`
	DB           int           `envconfig:"SHOPDW_REDIS_DB" default:"0"`
	DialTimeout  time.Duration `envconfig:"SHOPDW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SHOPDW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SHOPDW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type WarehouseConfig struct {
	StagingSchema string        `envconfig:"SHOPDW_STAGING_SCHEMA" default:"staging" validate:"required,sqlident"`
	DateStart     string        `envconfig:"SHOPDW_DATE_START" default:"2019-01-01" validate:"required,datetime=2006-01-02"`
	DateEnd       string        `envconfig:"SHOPDW_DATE_END" validate:"omitempty,datetime=2006-01-02"`
	BatchSize     int           `envconfig:"SHOPDW_BATCH_SIZE" default:"1000" validate:"gte=1,lte=10000"`
	LockEnabled   bool          `envconfig:"SHOPDW_LOCK_ENABLED" default:"false"`
	LockTTL       time.Duration `envconfig:"SHOPDW_LOCK_TTL" default:"2h" validate:"gte=0"`
	Interval      time.Duration `envconfig:"SHOPDW_LOAD_INTERVAL" default:"0s" validate:"gte=0"`
}

// DateRange resolves the configured date dimension bounds. A missing end
// defaults to one year after today.
func (w WarehouseConfig) DateRange(now time.Time) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(DateLayout, w.DateStart, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing %s: %w", EnvDateStart, err)
	}
	var end time.Time
	if w.DateEnd == "" {
		y, m, d := now.UTC().Date()
		end = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 365)
	} else {
		end, err = time.ParseInLocation(DateLayout, w.DateEnd, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing %s: %w", EnvDateEnd, err)
		}
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("date range start %s is after end %s", start.Format(DateLayout), end.Format(DateLayout))
	}
	return start, end, nil
}

type MetricsConfig struct {
	Address string `envconfig:"SHOPDW_METRICS_ADDR"`
}

func (c *Config) validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if tag := f.Tag.Get("envconfig"); tag != "" {
			return tag
		}
		return f.Name
	})
	if err := v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return identRe.MatchString(fl.Field().String())
	}); err != nil {
		return fmt.Errorf("registering validators: %w", err)
	}
	if err := v.Struct(c.Warehouse); err != nil {
		if errs, ok := err.(validator.ValidationErrors); ok {
			fields := make([]string, 0, len(errs))
			for _, fe := range errs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid warehouse config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid warehouse config: %w", err)
	}
	if c.Warehouse.LockEnabled && c.Redis.URL == "" && c.Redis.Address == "" {
		return fmt.Errorf("%s requires %s or %s", EnvLockEnabled, EnvRedisURL, EnvRedisAddr)
	}
	return nil
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range legacyDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
