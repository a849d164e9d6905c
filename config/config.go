package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"CAMPUSPAY_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"CAMPUSPAY_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"CAMPUSPAY_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"CAMPUSPAY_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"CAMPUSPAY_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"CAMPUSPAY_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"CAMPUSPAY_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns string `json:"dns" envconfig:"CAMPUSPAY_REDIS_DNS"`
}

// WebhookConfig holds inbound event verification settings. Multiple signing
// secrets may be configured at once so the gateway secret can rotate without a
// rejection window.
type WebhookConfig struct {
	SigningSecrets     []string      `json:"signing_secrets" envconfig:"CAMPUSPAY_WEBHOOK_SIGNING_SECRETS"`
	TimestampTolerance time.Duration `json:"timestamp_tolerance" envconfig:"CAMPUSPAY_WEBHOOK_TIMESTAMP_TOLERANCE"`
}

type RetryConfig struct {
	BaseDelay      time.Duration `json:"base_delay" envconfig:"CAMPUSPAY_RETRY_BASE_DELAY"`
	MaxDelay       time.Duration `json:"max_delay" envconfig:"CAMPUSPAY_RETRY_MAX_DELAY"`
	MaxAttempts    int           `json:"max_attempts" envconfig:"CAMPUSPAY_RETRY_MAX_ATTEMPTS"`
	JitterFraction float64       `json:"jitter_fraction" envconfig:"CAMPUSPAY_RETRY_JITTER_FRACTION"`
}

type GatewayConfig struct {
	BaseUrl string        `json:"base_url" envconfig:"CAMPUSPAY_GATEWAY_BASE_URL"`
	ApiKey  string        `json:"api_key" envconfig:"CAMPUSPAY_GATEWAY_API_KEY"`
	Timeout time.Duration `json:"timeout" envconfig:"CAMPUSPAY_GATEWAY_TIMEOUT"`
}

type FraudConfig struct {
	RiskScoreThreshold float64       `json:"risk_score_threshold" envconfig:"CAMPUSPAY_FRAUD_RISK_THRESHOLD"`
	VelocityWindow     time.Duration `json:"velocity_window" envconfig:"CAMPUSPAY_FRAUD_VELOCITY_WINDOW"`
	VelocityLimit      int           `json:"velocity_limit" envconfig:"CAMPUSPAY_FRAUD_VELOCITY_LIMIT"`
	ProbingAmountFloor int64         `json:"probing_amount_floor" envconfig:"CAMPUSPAY_FRAUD_PROBING_AMOUNT_FLOOR"`
	ProbingCount       int           `json:"probing_count" envconfig:"CAMPUSPAY_FRAUD_PROBING_COUNT"`
}

type QueueConfig struct {
	EventQueue     string `json:"event_queue" envconfig:"CAMPUSPAY_QUEUE_EVENT"`
	RetryQueue     string `json:"retry_queue" envconfig:"CAMPUSPAY_QUEUE_RETRY"`
	NotifierQueue  string `json:"notifier_queue" envconfig:"CAMPUSPAY_QUEUE_NOTIFIER"`
	NumberOfQueues int    `json:"number_of_queues" envconfig:"CAMPUSPAY_QUEUE_NUMBER_OF_QUEUES"`
	MonitoringPort string `json:"monitoring_port" envconfig:"CAMPUSPAY_QUEUE_MONITORING_PORT"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"CAMPUSPAY_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"CAMPUSPAY_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"CAMPUSPAY_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack   SlackWebhook `json:"slack"`
	Webhook struct {
		Url     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	} `json:"webhook"`
}

type Configuration struct {
	ProjectName        string           `json:"project_name" envconfig:"CAMPUSPAY_PROJECT_NAME"`
	Server             ServerConfig     `json:"server"`
	DataSource         DataSourceConfig `json:"data_source"`
	Redis              RedisConfig      `json:"redis"`
	Webhook            WebhookConfig    `json:"webhook"`
	Retry              RetryConfig      `json:"retry"`
	Gateway            GatewayConfig    `json:"gateway"`
	Fraud              FraudConfig      `json:"fraud"`
	Queue              QueueConfig      `json:"queue"`
	RateLimit          RateLimitConfig  `json:"rate_limit"`
	Notification       Notification     `json:"notification"`
	RefundDedupeWindow time.Duration    `json:"refund_dedupe_window" envconfig:"CAMPUSPAY_REFUND_DEDUPE_WINDOW"`
}

// SigningSecretBytes returns the configured signing secrets as raw byte
// slices, in rotation order.
func (cnf *Configuration) SigningSecretBytes() [][]byte {
	secrets := make([][]byte, 0, len(cnf.Webhook.SigningSecrets))
	for _, s := range cnf.Webhook.SigningSecrets {
		secrets = append(secrets, []byte(s))
	}
	return secrets
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("campuspay", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called campuspay.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "CampusPay Core"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if len(cnf.Webhook.SigningSecrets) == 0 {
		log.Println("Error: No webhook signing secret configured. It's a required field.")
		return errors.New("at least one webhook signing secret is required")
	}

	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Webhook.TimestampTolerance == 0 {
		cnf.Webhook.TimestampTolerance = 5 * time.Minute
	}
	if cnf.Retry.BaseDelay == 0 {
		cnf.Retry.BaseDelay = time.Minute
	}
	if cnf.Retry.MaxDelay == 0 {
		cnf.Retry.MaxDelay = 6 * time.Hour
	}
	if cnf.Retry.MaxAttempts == 0 {
		cnf.Retry.MaxAttempts = 5
	}
	if cnf.Retry.JitterFraction == 0 {
		cnf.Retry.JitterFraction = 0.2
	}
	if cnf.Gateway.Timeout == 0 {
		cnf.Gateway.Timeout = 15 * time.Second
	}
	if cnf.Fraud.RiskScoreThreshold == 0 {
		cnf.Fraud.RiskScoreThreshold = 0.75
	}
	if cnf.Fraud.VelocityWindow == 0 {
		cnf.Fraud.VelocityWindow = 10 * time.Minute
	}
	if cnf.Fraud.VelocityLimit == 0 {
		cnf.Fraud.VelocityLimit = 20
	}
	if cnf.Fraud.ProbingAmountFloor == 0 {
		cnf.Fraud.ProbingAmountFloor = 500
	}
	if cnf.Fraud.ProbingCount == 0 {
		cnf.Fraud.ProbingCount = 5
	}
	if cnf.RefundDedupeWindow == 0 {
		cnf.RefundDedupeWindow = 24 * time.Hour
	}
	if cnf.Queue.EventQueue == "" {
		cnf.Queue.EventQueue = "new:event"
	}
	if cnf.Queue.RetryQueue == "" {
		cnf.Queue.RetryQueue = "new:retry"
	}
	if cnf.Queue.NotifierQueue == "" {
		cnf.Queue.NotifierQueue = "new:notifier"
	}
	if cnf.Queue.NumberOfQueues == 0 {
		cnf.Queue.NumberOfQueues = 4
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5003"
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
