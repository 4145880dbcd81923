package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
)

// Config is read from flags, falling back to the environment and then to defaults.
type Config struct {
	HTTPAddr    string `long:"http-addr" env:"HTTP_ADDR" default:":8080" description:"HTTP listen address"`
	PostgresURL string `long:"postgres-url" env:"POSTGRES_URL" description:"Postgres connection string"`
	RedisAddr   string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address, host:port"`

	PaymentsURL      string `long:"payments-url" env:"PAYMENTS_URL" description:"Base URL of the payment service"`
	NotificationsURL string `long:"notifications-url" env:"NOTIFICATIONS_URL" description:"Base URL of the notification service"`
	AMQPURL          string `long:"amqp-url" env:"AMQP_URL" description:"RabbitMQ URL; notifications are sent over HTTP when empty"`

	JWTSecret      string `long:"jwt-secret" env:"JWT_SECRET" description:"HS256 secret; the X-User-ID header identifies callers when empty"`
	JaegerEndpoint string `long:"jaeger-endpoint" env:"JAEGER_ENDPOINT" description:"Jaeger collector endpoint"`
	GatewayAddr    string `long:"gateway-addr" env:"GATEWAY_ADDR" description:"Gateway serving the Jaeger API when no endpoint is set"`

	ExpirationWindow time.Duration `long:"expiration-window" env:"EXPIRATION_WINDOW" default:"15m" description:"How long a booking may stay unpaid"`
	SweepInterval    time.Duration `long:"sweep-interval" env:"SWEEP_INTERVAL" default:"1h" description:"How often unpaid bookings are swept"`
	RemoteTimeout    time.Duration `long:"remote-timeout" env:"REMOTE_TIMEOUT" default:"5s" description:"Timeout of calls to remote services"`
	LockTTL          time.Duration `long:"lock-ttl" env:"LOCK_TTL" default:"30s" description:"TTL of per-booking locks"`

	LogLevel string `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Log level"`
}

func Load(args []string) (Config, error) {
	var cfg Config

	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return Config{}, fmt.Errorf("could not parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	for name, value := range map[string]string{
		"POSTGRES_URL":      c.PostgresURL,
		"REDIS_ADDR":        c.RedisAddr,
		"PAYMENTS_URL":      c.PaymentsURL,
		"NOTIFICATIONS_URL": c.NotificationsURL,
	} {
		if value == "" {
			return fmt.Errorf("%s must be set", name)
		}
	}
	if c.ExpirationWindow <= 0 {
		return errors.New("expiration window must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.RemoteTimeout <= 0 {
		return errors.New("remote timeout must be positive")
	}
	if c.LockTTL <= 0 {
		return errors.New("lock ttl must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	return nil
}

// IsHelp reports whether Load stopped because help was requested; the parser has
// already printed the usage.
func IsHelp(err error) bool {
	var flagsErr *flags.Error
	return errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp
}

func (c Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
