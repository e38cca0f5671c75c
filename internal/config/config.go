package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	MySQL    MySQLConfig     `mapstructure:"mysql"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Kafka    KafkaConfig     `mapstructure:"kafka"`
	Provider ProviderConfig  `mapstructure:"provider"`
	Business BusinessConfig  `mapstructure:"business"`
	Packages []PackageConfig `mapstructure:"packages"`
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
	SettlementResult string `mapstructure:"settlement_result"`
}

// ProviderConfig 支付渠道配置
type ProviderConfig struct {
	BaseURL                   string `mapstructure:"base_url"`
	SecretKey                 string `mapstructure:"secret_key"`
	WebhookSecret             string `mapstructure:"webhook_secret"`              // 结算通知签名密钥
	SignatureToleranceSeconds int    `mapstructure:"signature_tolerance_seconds"` // 签名时间戳容忍窗口
	TimeoutSeconds            int    `mapstructure:"timeout_seconds"`
}

type BusinessConfig struct {
	InitialCreditGrant   int64 `mapstructure:"initial_credit_grant"`   // 新账户注册赠送积分
	StoreTimeoutSeconds  int   `mapstructure:"store_timeout_seconds"`  // 单次存储操作超时
	SweepIntervalSeconds int   `mapstructure:"sweep_interval_seconds"` // 对账补偿任务周期
	SweepSettleLagSeconds int  `mapstructure:"sweep_settle_lag_seconds"` // 只补偿已完成超过该时长的支付单
	SweepBatchSize       int   `mapstructure:"sweep_batch_size"`
	MaxRetryCount        int   `mapstructure:"max_retry_count"` // 消息投递最大重试次数
}

// PackageConfig 积分包配置
// 积分包是启动时解析的封闭集合，未知标识一律拒绝
type PackageConfig struct {
	ID          string `mapstructure:"id"`
	Name        string `mapstructure:"name"`
	Credits     int64  `mapstructure:"credits"`
	Price       int64  `mapstructure:"price"` // 最小货币单位（美分）
	Currency    string `mapstructure:"currency"`
	Description string `mapstructure:"description"`
}

func (c *BusinessConfig) StoreTimeout() time.Duration {
	if c.StoreTimeoutSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

// FindPackage 按标识查找积分包，找不到返回 nil
func (c *Config) FindPackage(packageID string) *PackageConfig {
	for i := range c.Packages {
		if c.Packages[i].ID == packageID {
			return &c.Packages[i]
		}
	}
	return nil
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	if len(config.Packages) == 0 {
		log.Fatalf("积分包目录不能为空")
	}
	for _, p := range config.Packages {
		if p.ID == "" || p.Credits <= 0 || p.Price <= 0 {
			log.Fatalf("积分包配置不合法: %+v", p)
		}
	}

	GlobalConfig = config
	return config
}
