// Package config loads settings from a .env file and KOVNICA_* environment
// variables. Command-line flags registered with RegisterFlags override both.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/erazemk/kovnica/internal/model"
)

// Config holds the settings shared by every command.
type Config struct {
	DBPath    string
	Addr      string
	AdminUser string
	LogPath   string

	RPCURL       string
	ChainID      int64
	Contract     string
	NativeSymbol string
	ChainTimeout time.Duration
	PrivateKey   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
}

// Load reads envFile if it exists, then the environment. Variables already
// set in the environment take precedence over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		} else if err == nil {
			slog.Info("loaded environment file", "path", envFile)
		}
	}

	c := &Config{
		DBPath:        getEnvOrDefault("KOVNICA_DB", "kovnica.sqlite3"),
		Addr:          getEnvOrDefault("KOVNICA_ADDR", ":8080"),
		AdminUser:     getEnvOrDefault("KOVNICA_ADMIN_USER", "Admin"),
		LogPath:       os.Getenv("KOVNICA_LOG"),
		RPCURL:        os.Getenv("KOVNICA_RPC_URL"),
		Contract:      os.Getenv("KOVNICA_CONTRACT"),
		NativeSymbol:  getEnvOrDefault("KOVNICA_NATIVE_SYMBOL", "ETH"),
		PrivateKey:    os.Getenv("KOVNICA_PRIVATE_KEY"),
		RedisAddr:     os.Getenv("KOVNICA_REDIS_ADDR"),
		RedisPassword: os.Getenv("KOVNICA_REDIS_PASSWORD"),
	}

	var err error
	if c.ChainID, err = getInt64("KOVNICA_CHAIN_ID", 1); err != nil {
		return nil, err
	}
	if c.ChainTimeout, err = getDuration("KOVNICA_CHAIN_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	redisDB, err := getInt64("KOVNICA_REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	c.RedisDB = int(redisDB)
	if c.CacheTTL, err = getDuration("KOVNICA_CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	return c, nil
}

// RegisterFlags adds the shared flags to fs, defaulting to the loaded values.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.DBPath, "db", c.DBPath, "")
	fs.StringVar(&c.DBPath, "d", c.DBPath, "")

	fs.StringVar(&c.LogPath, "log", c.LogPath, "")
	fs.StringVar(&c.LogPath, "l", c.LogPath, "")

	fs.StringVar(&c.RPCURL, "rpc", c.RPCURL, "")
	fs.StringVar(&c.RPCURL, "r", c.RPCURL, "")

	fs.StringVar(&c.Contract, "contract", c.Contract, "")
	fs.StringVar(&c.Contract, "c", c.Contract, "")

	fs.Int64Var(&c.ChainID, "chain-id", c.ChainID, "")
	fs.DurationVar(&c.ChainTimeout, "chain-timeout", c.ChainTimeout, "")

	fs.StringVar(&c.RedisAddr, "redis", c.RedisAddr, "")
	fs.DurationVar(&c.CacheTTL, "cache-ttl", c.CacheTTL, "")
}

// Validate checks settings. The chain settings are only required when
// requireChain is set.
func (c *Config) Validate(requireChain bool) error {
	if c.DBPath == "" {
		return errors.New("database path required")
	}
	if c.ChainTimeout <= 0 {
		return errors.New("chain timeout must be positive")
	}
	if c.RPCURL == "" && c.Contract == "" && !requireChain {
		return nil
	}
	if c.RPCURL == "" {
		return errors.New("RPC URL required")
	}
	if _, ok := model.NormalizeAddress(c.Contract); !ok {
		return fmt.Errorf("invalid contract address %q", c.Contract)
	}
	if c.ChainID <= 0 {
		return errors.New("chain id must be positive")
	}
	return nil
}

// ChainEnabled reports whether an RPC endpoint and contract are configured.
func (c *Config) ChainEnabled() bool {
	return c.RPCURL != "" && c.Contract != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return v, nil
}
