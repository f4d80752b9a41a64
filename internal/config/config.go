package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config is the full application configuration loaded from config.yaml.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Mail     MailConfig     `mapstructure:"mail"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Business BusinessConfig `mapstructure:"business"`
	Report   ReportConfig   `mapstructure:"report"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	LedgerEvents string `mapstructure:"ledger_events"`
}

// GatewayConfig holds the Arifpay payment gateway settings. The gateway is a
// black box to us: we create checkout sessions, request Telebirr B2C
// transfers, and receive payment webhooks.
type GatewayConfig struct {
	BaseURL            string `mapstructure:"base_url"`
	APIKey             string `mapstructure:"api_key"`
	MerchantID         string `mapstructure:"merchant_id"`
	BeneficiaryAccount string `mapstructure:"beneficiary_account"`
	BeneficiaryBank    string `mapstructure:"beneficiary_bank"`
	CancelURL          string `mapstructure:"cancel_url"`
	SuccessURL         string `mapstructure:"success_url"`
	ErrorURL           string `mapstructure:"error_url"`
	NotifyURL          string `mapstructure:"notify_url"`
	TimeoutSeconds     int    `mapstructure:"timeout_seconds"`
}

type MailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type AuthConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpiryHours int    `mapstructure:"expiry_hours"`
}

type BusinessConfig struct {
	MaxTransferRetries int `mapstructure:"max_transfer_retries"` // extra attempts after the first
	RetryDelayMillis   int `mapstructure:"retry_delay_millis"`
	MaxOutboxRetries   int `mapstructure:"max_outbox_retries"`
}

type ReportConfig struct {
	AdminEmail string `mapstructure:"admin_email"`
	Hour       int    `mapstructure:"hour"` // local hour of day for the daily summary
}

var GlobalConfig *Config

// LoadConfig reads and parses the yaml configuration file.
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config file: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("failed to parse config file: %v", err)
	}

	GlobalConfig = config
	return config
}
