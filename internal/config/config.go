// Package config reads deployment configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/betdapp/socialbets-smartcontracts/internal/auth"
	"github.com/betdapp/socialbets-smartcontracts/internal/bets"
	"github.com/betdapp/socialbets-smartcontracts/internal/ether"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Storage and services. Empty DATABASE_URL means in-memory stores;
	// empty REDIS_URL disables the event stream; empty RPC_URL skips
	// contract detection.
	DatabaseURL string
	RedisURL    string
	RPCURL      string

	// Deployment parameters, applied on first start only. Stored
	// parameters win afterwards and change through the admin API.
	OwnerAddress           common.Address
	Fee                    uint64 // basis points
	MinBetValue            *big.Int
	DefaultMediatorFee     uint64 // basis points
	DefaultMediatorAddress common.Address
	MediationTimeLimit     time.Duration

	// On-chain deposits. Empty DEPOSIT_ADDRESS disables the watcher and
	// leaves funding to the admin deposit route.
	DepositAddress       common.Address
	DepositConfirmations uint64
	DepositPollInterval  time.Duration
	DepositStartBlock    uint64

	// Keeper
	KeeperEnabled    bool
	KeeperPrivateKey string
	KeeperInterval   time.Duration

	ReconcileInterval time.Duration
	AuthMaxSkew       time.Duration
	RateLimitRPM      int
	OTLPEndpoint      string
}

const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultFee               = 100 // 1%
	DefaultMinBetValue       = "0.001"
	DefaultMediatorFee       = 100 // 1%
	DefaultKeeperInterval    = 30 * time.Second
	DefaultReconcileInterval = 5 * time.Minute
	DefaultRateLimitRPM      = 120
	DefaultDepositConfirms   = 3
	DefaultDepositInterval   = 15 * time.Second
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	var errs []error
	addr := func(key string) common.Address {
		v := os.Getenv(key)
		if v == "" {
			return common.Address{}
		}
		if !common.IsHexAddress(v) {
			errs = append(errs, fmt.Errorf("%s must be a 0x-prefixed 20-byte hex address", key))
			return common.Address{}
		}
		return common.HexToAddress(v)
	}
	dur := func(key string, def time.Duration) time.Duration {
		d, err := getEnvDuration(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return d
	}

	cfg := &Config{
		Port:                   getEnv("PORT", DefaultPort),
		Env:                    getEnv("ENV", DefaultEnv),
		LogLevel:               getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:              getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisURL:               os.Getenv("REDIS_URL"),
		RPCURL:                 os.Getenv("RPC_URL"),
		OwnerAddress:           addr("OWNER_ADDRESS"),
		Fee:                    uint64(getEnvInt64("FEE", DefaultFee)),
		DefaultMediatorFee:     uint64(getEnvInt64("DEFAULT_MEDIATOR_FEE", DefaultMediatorFee)),
		DefaultMediatorAddress: addr("DEFAULT_MEDIATOR_ADDRESS"),
		MediationTimeLimit:     dur("MEDIATION_TIME_LIMIT", bets.DefaultMediationTimeLimit),
		DepositAddress:         addr("DEPOSIT_ADDRESS"),
		DepositConfirmations:   uint64(getEnvInt64("DEPOSIT_CONFIRMATIONS", DefaultDepositConfirms)),
		DepositPollInterval:    dur("DEPOSIT_POLL_INTERVAL", DefaultDepositInterval),
		DepositStartBlock:      uint64(getEnvInt64("DEPOSIT_START_BLOCK", 0)),
		KeeperEnabled:          getEnvBool("KEEPER_ENABLED", false),
		KeeperPrivateKey:       strings.TrimPrefix(os.Getenv("KEEPER_PRIVATE_KEY"), "0x"),
		KeeperInterval:         dur("KEEPER_INTERVAL", DefaultKeeperInterval),
		ReconcileInterval:      dur("RECONCILE_INTERVAL", DefaultReconcileInterval),
		AuthMaxSkew:            dur("AUTH_MAX_SKEW", auth.DefaultMaxSkew),
		RateLimitRPM:           int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		OTLPEndpoint:           os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	minBet, err := ether.Parse(getEnv("MIN_BET_VALUE", DefaultMinBetValue))
	if err != nil {
		errs = append(errs, fmt.Errorf("MIN_BET_VALUE: %w", err))
	}
	cfg.MinBetValue = minBet

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and in range.
func (c *Config) Validate() error {
	var errs []error
	if c.OwnerAddress == (common.Address{}) {
		errs = append(errs, errors.New("OWNER_ADDRESS is required"))
	}
	if c.DefaultMediatorAddress == (common.Address{}) {
		errs = append(errs, errors.New("DEFAULT_MEDIATOR_ADDRESS is required"))
	}
	if c.Fee > bets.Divisor {
		errs = append(errs, fmt.Errorf("FEE must be at most %d basis points", bets.Divisor))
	}
	if c.DefaultMediatorFee > bets.Divisor {
		errs = append(errs, fmt.Errorf("DEFAULT_MEDIATOR_FEE must be at most %d basis points", bets.Divisor))
	}
	if c.MediationTimeLimit <= 0 {
		errs = append(errs, errors.New("MEDIATION_TIME_LIMIT must be positive"))
	}
	if c.KeeperEnabled && len(c.KeeperPrivateKey) != 64 {
		errs = append(errs, errors.New("KEEPER_PRIVATE_KEY must be 64 hex characters when KEEPER_ENABLED is set"))
	}
	if c.DepositAddress != (common.Address{}) && c.RPCURL == "" {
		errs = append(errs, errors.New("RPC_URL is required when DEPOSIT_ADDRESS is set"))
	}
	if c.IsProduction() && c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required in production"))
	}
	if c.AuthMaxSkew <= 0 {
		errs = append(errs, errors.New("AUTH_MAX_SKEW must be positive"))
	}
	return errors.Join(errs...)
}

// Genesis returns the parameters the bets service is initialized with.
func (c *Config) Genesis() bets.Genesis {
	return bets.Genesis{
		Owner:              c.OwnerAddress,
		FeePercentage:      c.Fee,
		MinBetValue:        new(big.Int).Set(c.MinBetValue),
		DefaultMediatorFee: c.DefaultMediatorFee,
		DefaultMediator:    c.DefaultMediatorAddress,
		MediationTimeLimit: c.MediationTimeLimit,
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("72h") or whole seconds ("259200").
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 72h or a number of seconds", key)
	}
	return d, nil
}
