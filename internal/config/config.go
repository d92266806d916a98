package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverMongo  = "mongo"
	DriverMySQL  = "mysql"
	DriverRedis  = "redis"
	DriverMemory = "memory"
)

type Config struct {
	StoreDriver string

	MongoURI    string
	MongoDBName string

	MySQLDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	HTTPAddr string
	LogLevel string

	CredentialURL    string
	CredentialCookie string
	ChromeBin        string
	BrowserHeadless  bool
	SettleDelay      time.Duration
	AcquireTimeout   time.Duration

	CheckInterval time.Duration
}

// Load reads the env file named by envFile (or START), falling back to an
// optional .env, then builds the config from the environment.
func Load(envFile string) (Config, error) {
	if envFile == "" {
		envFile = os.Getenv("START")
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("env file .env: %w", err)
	}

	return FromEnv()
}

func FromEnv() (Config, error) {
	var err error
	cfg := Config{
		StoreDriver: getenv("STORE_DRIVER", DriverMongo),

		MongoURI:    getenv("MONGO_URI", "mongodb://localhost:27017/"),
		MongoDBName: getenv("MONGO_DB_NAME", "session_tracker"),

		MySQLDSN: os.Getenv("MYSQL_DSN"),

		RedisAddr:     getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		HTTPAddr: getenv("HTTP_ADDR", ":8082"),
		LogLevel: getenv("LOG_LEVEL", "info"),

		CredentialURL:    getenv("CREDENTIAL_URL", "https://www.instagram.com"),
		CredentialCookie: getenv("CREDENTIAL_COOKIE", "sessionid"),
		ChromeBin:        os.Getenv("CHROME_BIN"),
	}

	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return Config{}, err
	}
	if cfg.BrowserHeadless, err = getBool("BROWSER_HEADLESS", true); err != nil {
		return Config{}, err
	}
	if cfg.SettleDelay, err = getDuration("SETTLE_DELAY", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.AcquireTimeout, err = getDuration("ACQUIRE_TIMEOUT", 30*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.CheckInterval, err = getDuration("CHECK_INTERVAL", 5*time.Second); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is not set in environment")
		}
		if c.MongoDBName == "" {
			return errors.New("MONGO_DB_NAME is not set in environment")
		}
	case DriverMySQL:
		if c.MySQLDSN == "" {
			return errors.New("MYSQL_DSN is not set in environment")
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is not set in environment")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.AcquireTimeout <= 0 {
		return errors.New("ACQUIRE_TIMEOUT must be positive")
	}
	if c.SettleDelay < 0 {
		return errors.New("SETTLE_DELAY must not be negative")
	}
	if c.CheckInterval <= 0 {
		return errors.New("CHECK_INTERVAL must be positive")
	}
	return nil
}

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
