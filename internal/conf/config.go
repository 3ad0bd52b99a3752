package conf

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Chain    ChainConfig
	Swap     SwapConfig
	Auth     AuthConfig
	Log      LogConfig
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	FrontendURL string `mapstructure:"frontend_url"`
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// StorageConfig selects the content-addressed storage backend.
// Backend is either "ipfs" (pinning service + gateway) or "minio".
type StorageConfig struct {
	Backend string      `mapstructure:"backend"`
	IPFS    IPFSConfig  `mapstructure:"ipfs"`
	MinIO   MinIOConfig `mapstructure:"minio"`
}

type IPFSConfig struct {
	APIURL     string        `mapstructure:"api_url"`
	GatewayURL string        `mapstructure:"gateway_url"`
	APIKey     string        `mapstructure:"api_key"`
	APISecret  string        `mapstructure:"api_secret"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type ChainConfig struct {
	RPCURL          string        `mapstructure:"rpc_url"`
	ContractAddress string        `mapstructure:"contract_address"`
	ChainID         int64         `mapstructure:"chain_id"`
	PrivateKey      string        `mapstructure:"private_key"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

type SwapConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Secret        string        `mapstructure:"secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SettleAsset   string        `mapstructure:"settle_asset"`
	SettleNetwork string        `mapstructure:"settle_network"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type AuthConfig struct {
	ViewTokenSecret string        `mapstructure:"view_token_secret"`
	ViewTokenTTL    time.Duration `mapstructure:"view_token_ttl"`
}

type LogConfig struct {
	Level            string        `mapstructure:"level"`
	Format           string        `mapstructure:"format"`
	Output           string        `mapstructure:"output"`
	File             FileLogConfig `mapstructure:"file"`
	EnableCaller     bool          `mapstructure:"enablecaller"`
	EnableStacktrace bool          `mapstructure:"enablestacktrace"`
}

type FileLogConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"maxsize"`
	MaxAge     int    `mapstructure:"maxage"`
	MaxBackups int    `mapstructure:"maxbackups"`
	Compress   bool   `mapstructure:"compress"`
}

func LoadConfig(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Storage.Backend == "" {
		config.Storage.Backend = "ipfs"
	}
	if config.Chain.ReadTimeout == 0 {
		config.Chain.ReadTimeout = 10 * time.Second
	}
	if config.Chain.WriteTimeout == 0 {
		config.Chain.WriteTimeout = 60 * time.Second
	}
	if config.Swap.Timeout == 0 {
		config.Swap.Timeout = 15 * time.Second
	}
	if config.Swap.SettleAsset == "" {
		config.Swap.SettleAsset = "USDC"
	}
	if config.Swap.SettleNetwork == "" {
		config.Swap.SettleNetwork = "polygon"
	}
	if config.Swap.SweepInterval == 0 {
		config.Swap.SweepInterval = 30 * time.Second
	}
	if config.Auth.ViewTokenTTL == 0 {
		config.Auth.ViewTokenTTL = 15 * time.Minute
	}

	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
