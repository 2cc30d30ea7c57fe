package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env          string       `yaml:"env" env:"ENV" env-default:"local"`
	Service      string       `yaml:"service" env:"SERVICE_NAME" env-default:"minishop-fulfillment"`
	HTTP         HTTP         `yaml:"http"`
	Log          Log          `yaml:"log"`
	Telemetry    Telemetry    `yaml:"telemetry"`
	Postgres     Postgres     `yaml:"postgres"`
	Redis        Redis        `yaml:"redis"`
	Kafka        Kafka        `yaml:"kafka"`
	AMQP         AMQP         `yaml:"amqp"`
	Notification Notification `yaml:"notification"`
	Inventory    Collaborator `yaml:"inventory" env-prefix:"INVENTORY_"`
	Voucher      Collaborator `yaml:"voucher" env-prefix:"VOUCHER_"`
	Card         Card         `yaml:"card"`
	Gateway      Gateway      `yaml:"gateway"`
	BankTransfer BankTransfer `yaml:"bank_transfer"`
	Saga         Saga         `yaml:"saga"`
}

type HTTP struct {
	Addr            string        `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	File  string `yaml:"file" env:"LOG_FILE"`
}

type Telemetry struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"TELEMETRY_OTLP_ENDPOINT"`
	SampleRatio  float64 `yaml:"sample_ratio" env:"TELEMETRY_SAMPLE_RATIO" env-default:"1"`
}

// Postgres selects the durable store. Empty URL keeps everything in memory.
type Postgres struct {
	URL             string        `yaml:"url" env:"DB_URL"`
	MaxConns        int32         `yaml:"max_conns" env:"DB_MAX_CONNS" env-default:"10"`
	MinConns        int32         `yaml:"min_conns" env:"DB_MIN_CONNS" env-default:"2"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" env-default:"1h"`
	MigrationsPath  string        `yaml:"migrations_path" env:"DB_MIGRATIONS_PATH" env-default:"migrations"`
}

// Redis enables the order read cache when Addr is set.
type Redis struct {
	Addr     string        `yaml:"addr" env:"REDIS_ADDR"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL" env-default:"5m"`
}

type Kafka struct {
	Brokers           []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
	NotificationTopic string   `yaml:"notification_topic" env:"KAFKA_NOTIFICATION_TOPIC" env-default:"order-notifications"`
	DeadLetterTopic   string   `yaml:"dead_letter_topic" env:"KAFKA_DEAD_LETTER_TOPIC" env-default:"fulfillment-dead-letter"`
}

type AMQP struct {
	URL      string `yaml:"url" env:"AMQP_URL"`
	Exchange string `yaml:"exchange" env:"AMQP_EXCHANGE" env-default:"notifications"`
}

// Notification picks the sink for customer notifications: log, http, kafka or amqp.
type Notification struct {
	Transport string        `yaml:"transport" env:"NOTIFICATION_TRANSPORT" env-default:"log"`
	BaseURL   string        `yaml:"base_url" env:"NOTIFICATION_BASE_URL"`
	Timeout   time.Duration `yaml:"timeout" env:"NOTIFICATION_TIMEOUT" env-default:"3s"`
}

// Collaborator is a remote HTTP dependency guarded by a circuit breaker.
type Collaborator struct {
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT" env-default:"5s"`
	Breaker Breaker       `yaml:"breaker"`
}

type Breaker struct {
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" env:"BREAKER_CONSECUTIVE_FAILURES" env-default:"5"`
	FailureRatio        float64       `yaml:"failure_ratio" env:"BREAKER_FAILURE_RATIO" env-default:"0.5"`
	MinRequests         uint32        `yaml:"min_requests" env:"BREAKER_MIN_REQUESTS" env-default:"10"`
	Interval            time.Duration `yaml:"interval" env:"BREAKER_INTERVAL" env-default:"60s"`
	CoolDown            time.Duration `yaml:"cool_down" env:"BREAKER_COOL_DOWN" env-default:"30s"`
}

// Card configures the card provider. Empty BaseURL uses the sandbox simulator.
type Card struct {
	BaseURL            string        `yaml:"base_url" env:"CARD_BASE_URL"`
	APIKey             string        `yaml:"api_key" env:"CARD_API_KEY"`
	Timeout            time.Duration `yaml:"timeout" env:"CARD_TIMEOUT" env-default:"10s"`
	Breaker            Breaker       `yaml:"breaker" env-prefix:"CARD_"`
	SandboxSuccessRate float64       `yaml:"sandbox_success_rate" env:"CARD_SANDBOX_SUCCESS_RATE" env-default:"0.9"`
}

type Gateway struct {
	Enabled      bool   `yaml:"enabled" env:"GATEWAY_ENABLED" env-default:"true"`
	MerchantCode string `yaml:"merchant_code" env:"GATEWAY_MERCHANT_CODE"`
	SecretKey    string `yaml:"secret_key" env:"GATEWAY_SECRET_KEY"`
	PaymentURL   string `yaml:"payment_url" env:"GATEWAY_PAYMENT_URL" env-default:"https://sandbox.vnpayment.vn/paymentv2/vpcpay.html"`
	ReturnURL    string `yaml:"return_url" env:"GATEWAY_RETURN_URL" env-default:"http://localhost:8080/payments/gateway/return"`
}

type BankTransfer struct {
	BankName      string `yaml:"bank_name" env:"BANK_NAME" env-default:"Vietcombank"`
	AccountNumber string `yaml:"account_number" env:"BANK_ACCOUNT_NUMBER" env-default:"1234567890"`
	AccountHolder string `yaml:"account_holder" env:"BANK_ACCOUNT_HOLDER" env-default:"E-commerce Platform"`
}

type Saga struct {
	ConfirmAttempts        int           `yaml:"confirm_attempts" env:"SAGA_CONFIRM_ATTEMPTS" env-default:"3"`
	ConfirmBaseDelay       time.Duration `yaml:"confirm_base_delay" env:"SAGA_CONFIRM_BASE_DELAY" env-default:"1s"`
	PaymentTimeout         time.Duration `yaml:"payment_timeout" env:"SAGA_PAYMENT_TIMEOUT" env-default:"30m"`
	SweepInterval          time.Duration `yaml:"sweep_interval" env:"SAGA_SWEEP_INTERVAL" env-default:"10m"`
	SweepBatch             int           `yaml:"sweep_batch" env:"SAGA_SWEEP_BATCH" env-default:"100"`
	InventoryRetryAttempts int           `yaml:"inventory_retry_attempts" env:"SAGA_INVENTORY_RETRY_ATTEMPTS" env-default:"5"`
	InventoryRetryDelay    time.Duration `yaml:"inventory_retry_delay" env:"SAGA_INVENTORY_RETRY_DELAY" env-default:"1s"`
}

// Load reads path when given, otherwise the environment alone, and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read config from env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks constraints that span fields.
func (c *Config) Validate() error {
	var errs []error
	if c.Inventory.BaseURL == "" {
		errs = append(errs, errors.New("inventory.base_url is required"))
	}
	if c.Inventory.Timeout <= 0 || c.Voucher.Timeout <= 0 {
		errs = append(errs, errors.New("collaborator timeouts must be positive"))
	}
	switch strings.ToLower(c.Notification.Transport) {
	case "log":
	case "http":
		if c.Notification.BaseURL == "" {
			errs = append(errs, errors.New("notification.base_url is required for the http transport"))
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, errors.New("kafka.brokers is required for the kafka transport"))
		}
	case "amqp":
		if c.AMQP.URL == "" {
			errs = append(errs, errors.New("amqp.url is required for the amqp transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("notification.transport %q is not one of log, http, kafka, amqp", c.Notification.Transport))
	}
	if c.Gateway.Enabled && (c.Gateway.MerchantCode == "" || c.Gateway.SecretKey == "") {
		errs = append(errs, errors.New("gateway.merchant_code and gateway.secret_key are required when the gateway is enabled"))
	}
	if c.Saga.ConfirmAttempts < 1 {
		errs = append(errs, errors.New("saga.confirm_attempts must be at least 1"))
	}
	if c.Saga.PaymentTimeout <= 0 || c.Saga.SweepInterval <= 0 {
		errs = append(errs, errors.New("saga.payment_timeout and saga.sweep_interval must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
