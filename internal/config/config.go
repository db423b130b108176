package config

import (
	"log"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	viper "github.com/spf13/viper"
)

/*
init 與 read 分開
init : 設置viper watch 與 onConfigChange
read : 一般讀取 使用讀寫鎖
*/
var configSingleton *ConfigSingleTon
var muonce sync.Once

type ConfigSingleTon struct {
	Config *Config
	mu     sync.RWMutex
}

type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`
	SiteURL    string `mapstructure:"SITE_URL"`

	DbName string `mapstructure:"POSTGRES_DB"`
	DbHost string `mapstructure:"POSTGRES_HOST"`
	DbPort string `mapstructure:"POSTGRES_PORT"`
	DbUser string `mapstructure:"POSTGRES_USER"`
	DbPas  string `mapstructure:"POSTGRES_PASSWORD"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	KafkaBrokers           []string `mapstructure:"KAFKA_BROKERS"`
	KafkaNotificationTopic string   `mapstructure:"KAFKA_NOTIFICATION_TOPIC"`
	KafkaPaymentTopic      string   `mapstructure:"KAFKA_PAYMENT_TOPIC"`
	KafkaConsumerGroup     string   `mapstructure:"KAFKA_CONSUMER_GROUP"`

	TaxRate            float64 `mapstructure:"TAX_RATE"`
	DefaultDeliveryFee float64 `mapstructure:"DEFAULT_DELIVERY_FEE"`
	PaymentExpiryMin   int     `mapstructure:"PAYMENT_EXPIRY_MIN"`

	ProviderTimeoutSec int `mapstructure:"PROVIDER_TIMEOUT_SEC"`

	OrangeBaseURL     string `mapstructure:"ORANGE_BASE_URL"`
	OrangeAPIKey      string `mapstructure:"ORANGE_API_KEY"`
	OrangeAPISecret   string `mapstructure:"ORANGE_API_SECRET"`
	OrangeMerchantKey string `mapstructure:"ORANGE_MERCHANT_KEY"`

	MTNBaseURL         string `mapstructure:"MTN_BASE_URL"`
	MTNAPIKey          string `mapstructure:"MTN_API_KEY"`
	MTNAPISecret       string `mapstructure:"MTN_API_SECRET"`
	MTNSubscriptionKey string `mapstructure:"MTN_SUBSCRIPTION_KEY"`
	MTNTargetEnv       string `mapstructure:"MTN_TARGET_ENV"`
}

// ProviderTimeout 外部 provider 呼叫逾時，預設30秒
func (c *Config) ProviderTimeout() time.Duration {
	if c.ProviderTimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ProviderTimeoutSec) * time.Second
}

func GetConfig() *Config {
	initConfig()
	configSingleton.mu.RLock()
	defer configSingleton.mu.RUnlock()
	return configSingleton.Config
}

func initConfig() {
	if configSingleton == nil {
		muonce.Do(func() {
			configSingleton = &ConfigSingleTon{}
			if cf, err := loadConfig(); err == nil {
				configSingleton.Config = cf
			} else {
				log.Fatal("error read config")
			}
			viper.WatchConfig()
			viper.OnConfigChange(func(e fsnotify.Event) {
				if cf, err := loadConfig(); err == nil {
					configSingleton.mu.Lock()
					configSingleton.Config = cf
					configSingleton.mu.Unlock()
				} else {
					log.Panic("failed to reload config file")
				}
			})
		})
	}
}

/*
單純回傳錯誤 由外部決定要不要Fatal
*/
func loadConfig() (cf *Config, err error) {
	cf = &Config{}
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(cf)
	if err != nil {
		return
	}
	return
}
