package config

import (
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"

	minKeyLength = 32
)

// Secret overrides read from the environment (or a .env file in the config
// folder) after private.yaml.
const (
	EnvJwtAccessKey  = "IDEAMARKET_JWT_ACCESS_KEY"
	EnvJwtRefreshKey = "IDEAMARKET_JWT_REFRESH_KEY"
	EnvPgPassword    = "IDEAMARKET_PG_PASSWORD"
	EnvRedisPassword = "IDEAMARKET_REDIS_PASSWORD"
)

type Config struct {
	Public  Public
	private Private
}

type Public struct {
	Env            string   `yaml:"env"`
	LogLevel       string   `yaml:"log_level"`
	LogJSON        bool     `yaml:"log_json"`
	Http           Http     `yaml:"http"`
	SecureCookies  bool     `yaml:"secure_cookies"`
	TrustProxy     bool     `yaml:"trust_proxy"` // honour X-Forwarded-For / X-Real-IP
	AllowedOrigins []string `yaml:"allowed_origins"`
	BcryptCost     int      `yaml:"bcrypt_cost"`

	BlacklistSweepInterval time.Duration `yaml:"blacklist_sweep_interval"`

	RateLimit RateLimit `yaml:"rate_limit"`
	Lockout   Lockout   `yaml:"lockout"`
}

type Http struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type RateLimit struct {
	Backend     string `yaml:"backend"` // memory | redis
	RedisPrefix string `yaml:"redis_prefix"`
}

// Lockout locks an account for Duration after Threshold failed logins
// within Window.
type Lockout struct {
	Threshold int           `yaml:"threshold"`
	Window    time.Duration `yaml:"window"`
	Duration  time.Duration `yaml:"duration"`
}

type Pg struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Dbname   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Private struct {
	Pg            Pg     `yaml:"pg"`
	Redis         Redis  `yaml:"redis"`
	JwtAccessKey  string `yaml:"jwt_access_key"`
	JwtRefreshKey string `yaml:"jwt_refresh_key"`
}

func (c *Config) JwtAccessKey() string {
	return c.private.JwtAccessKey
}

func (c *Config) JwtRefreshKey() string {
	return c.private.JwtRefreshKey
}

func (c *Config) Pg() Pg {
	return c.private.Pg
}

func (c *Config) Redis() Redis {
	return c.private.Redis
}

func (c *Config) IsProduction() bool {
	return c.Public.Env == EnvProduction
}

// New builds a config in code. Used by tests and tools.
func New(public Public, private Private) *Config {
	applyDefaults(&public, &private)
	return &Config{Public: public, private: private}
}

func loadPath(configPath string, output interface{}, required bool) error {
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("can't read config file %s: %w", configPath, err)
	}
	if err := yaml.UnmarshalStrict(configFile, output); err != nil {
		return fmt.Errorf("can't unmarshal config file %s: %w", configPath, err)
	}
	return nil
}

// Load reads public.yaml and private.yaml from configFolder, applies
// environment overrides and defaults, and validates the result.
// private.yaml may be absent when every secret comes from the environment.
func Load(configFolder string) (*Config, error) {
	var public Public
	if err := loadPath(path.Join(configFolder, "public.yaml"), &public, true); err != nil {
		return nil, err
	}

	var private Private
	if err := loadPath(path.Join(configFolder, "private.yaml"), &private, false); err != nil {
		return nil, err
	}

	// existing environment wins over .env
	if err := godotenv.Load(path.Join(configFolder, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("can't load .env: %w", err)
	}
	applyEnv(&private)
	applyDefaults(&public, &private)

	cfg := &Config{Public: public, private: private}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad(configFolder string) *Config {
	cfg, err := Load(configFolder)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func applyEnv(private *Private) {
	overrides := map[string]*string{
		EnvJwtAccessKey:  &private.JwtAccessKey,
		EnvJwtRefreshKey: &private.JwtRefreshKey,
		EnvPgPassword:    &private.Pg.Password,
		EnvRedisPassword: &private.Redis.Password,
	}
	for name, field := range overrides {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*field = v
		}
	}
}

func applyDefaults(public *Public, private *Private) {
	if public.Env == "" {
		public.Env = EnvDevelopment
	}
	if public.LogLevel == "" {
		public.LogLevel = "info"
	}
	if public.Http.Port == 0 {
		public.Http.Port = 8080
	}
	if public.Http.ReadTimeout == 0 {
		public.Http.ReadTimeout = 10 * time.Second
	}
	if public.Http.WriteTimeout == 0 {
		public.Http.WriteTimeout = 15 * time.Second
	}
	if public.Http.IdleTimeout == 0 {
		public.Http.IdleTimeout = 60 * time.Second
	}
	if public.Http.ShutdownTimeout == 0 {
		public.Http.ShutdownTimeout = 10 * time.Second
	}
	if public.BcryptCost == 0 {
		public.BcryptCost = 12
	}
	if public.BlacklistSweepInterval == 0 {
		public.BlacklistSweepInterval = time.Hour
	}
	if public.RateLimit.Backend == "" {
		public.RateLimit.Backend = RateLimitMemory
	}
	if public.Lockout.Threshold == 0 {
		public.Lockout.Threshold = 5
	}
	if public.Lockout.Window == 0 {
		public.Lockout.Window = 15 * time.Minute
	}
	if public.Lockout.Duration == 0 {
		public.Lockout.Duration = 15 * time.Minute
	}
	if private.Pg.Port == 0 {
		private.Pg.Port = 5432
	}
	if private.Pg.SSLMode == "" {
		private.Pg.SSLMode = "disable"
	}
}

func (c *Config) Validate() error {
	var errs []error
	p, s := c.Public, c.private

	switch p.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		errs = append(errs, fmt.Errorf("env must be one of development, production, test; got %q", p.Env))
	}
	if len(s.JwtAccessKey) < minKeyLength {
		errs = append(errs, fmt.Errorf("jwt_access_key must be at least %d bytes", minKeyLength))
	}
	if len(s.JwtRefreshKey) < minKeyLength {
		errs = append(errs, fmt.Errorf("jwt_refresh_key must be at least %d bytes", minKeyLength))
	}
	if s.JwtAccessKey != "" && s.JwtAccessKey == s.JwtRefreshKey {
		errs = append(errs, errors.New("jwt_access_key and jwt_refresh_key must differ"))
	}
	if s.Pg.Host == "" || s.Pg.User == "" || s.Pg.Dbname == "" {
		errs = append(errs, errors.New("pg.host, pg.user and pg.dbname are required"))
	}
	switch p.RateLimit.Backend {
	case RateLimitMemory:
	case RateLimitRedis:
		if s.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis rate limit backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("rate_limit.backend must be memory or redis; got %q", p.RateLimit.Backend))
	}
	if p.Lockout.Threshold < 1 || p.Lockout.Window <= 0 || p.Lockout.Duration <= 0 {
		errs = append(errs, errors.New("lockout threshold, window and duration must be positive"))
	}
	if p.Env == EnvProduction && !p.SecureCookies {
		errs = append(errs, errors.New("secure_cookies must be enabled in production"))
	}

	return errors.Join(errs...)
}
