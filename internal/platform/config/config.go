package config

import (
	"fmt"
	"math/big"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

const (
	defaultEntryFeeWei   = "10000000000000000"
	defaultCommissionBps = 1000
	maxCommissionBps     = 10000
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string
	HTTPPort     string
	PostgresDSN  string
	KafkaBrokers []string

	LedgerOwner        common.Address
	EntryFeeWei        *big.Int
	CommissionBps      uint64
	OutboxPollInterval time.Duration

	LogLevel  string
	LogFormat string
}

// LoadDotEnv reads path into the environment when the file exists. Variables
// already set in the environment win.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "voting-ledger"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	var brokers []string
	for _, value := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	rawOwner := strings.TrimSpace(os.Getenv("LEDGER_OWNER_ADDRESS"))
	if rawOwner == "" {
		return Config{}, fmt.Errorf("LEDGER_OWNER_ADDRESS is required")
	}
	if !common.IsHexAddress(rawOwner) || common.HexToAddress(rawOwner) == (common.Address{}) {
		return Config{}, fmt.Errorf("LEDGER_OWNER_ADDRESS %q is not a valid address", rawOwner)
	}

	entryFee, ok := new(big.Int).SetString(envString("ENTRY_FEE_WEI", defaultEntryFeeWei), 10)
	if !ok || entryFee.Sign() <= 0 {
		return Config{}, fmt.Errorf("ENTRY_FEE_WEI must be a positive integer amount of wei")
	}

	bps, err := strconv.ParseUint(envString("COMMISSION_BPS", strconv.Itoa(defaultCommissionBps)), 10, 64)
	if err != nil || bps > maxCommissionBps {
		return Config{}, fmt.Errorf("COMMISSION_BPS must be an integer between 0 and %d", maxCommissionBps)
	}

	interval, err := time.ParseDuration(envString("OUTBOX_POLL_INTERVAL", "2s"))
	if err != nil || interval <= 0 {
		return Config{}, fmt.Errorf("OUTBOX_POLL_INTERVAL must be a positive duration")
	}

	return Config{
		ServiceName:  service,
		HTTPPort:     port,
		PostgresDSN:  os.Getenv("POSTGRES_DSN"),
		KafkaBrokers: brokers,

		LedgerOwner:        common.HexToAddress(rawOwner),
		EntryFeeWei:        entryFee,
		CommissionBps:      bps,
		OutboxPollInterval: interval,

		LogLevel:  strings.ToLower(envString("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(envString("LOG_FORMAT", "text")),
	}, nil
}

// DebugString returns a one-line configuration summary with the DSN
// password masked.
func (c Config) DebugString() string {
	fee := "0"
	if c.EntryFeeWei != nil {
		fee = c.EntryFeeWei.String()
	}
	return fmt.Sprintf(
		"service=%s port=%s dsn=%s kafka=%s owner=%s entry_fee_wei=%s commission_bps=%d outbox_poll=%s log=%s/%s",
		c.ServiceName,
		c.HTTPPort,
		maskDSN(c.PostgresDSN),
		strings.Join(c.KafkaBrokers, ","),
		c.LedgerOwner.Hex(),
		fee,
		c.CommissionBps,
		c.OutboxPollInterval,
		c.LogLevel,
		c.LogFormat,
	)
}

func maskDSN(dsn string) string {
	if strings.TrimSpace(dsn) == "" {
		return "memory"
	}
	if u, err := url.Parse(dsn); err == nil && u.Scheme != "" {
		if u.User != nil {
			u.User = url.User(u.User.Username())
		}
		return u.String()
	}
	// Key-value DSN.
	parts := strings.Fields(dsn)
	for i, part := range parts {
		if strings.HasPrefix(strings.ToLower(part), "password=") {
			parts[i] = "password=***"
		}
	}
	return strings.Join(parts, " ")
}

func envString(name string, fallback string) string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	return raw
}
