package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// BaseConfig contains common configuration shared by all services
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	// Connection pool settings
	MaxOpenConns    int `mapstructure:"max_open_conns"`
	MaxIdleConns    int `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int `mapstructure:"conn_max_lifetime"` // seconds
	ConnMaxIdleTime int `mapstructure:"conn_max_idle_time"` // seconds
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}

// NATSConfig contains NATS JetStream connection settings
type NATSConfig struct {
	URL            string `mapstructure:"url"`
	StreamName     string `mapstructure:"stream_name"`
	MaxReconnects  int    `mapstructure:"max_reconnects"`
	ReconnectWait  int    `mapstructure:"reconnect_wait"` // seconds
	ConnectionName string `mapstructure:"connection_name"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // seconds
	IdleTimeout  int    `mapstructure:"idle_timeout"`  // seconds
}

// AuthConfig contains API authentication settings
type AuthConfig struct {
	JWTPublicKey string   `mapstructure:"jwt_public_key"`
	APIKeys      []string `mapstructure:"api_keys"`
}

// LedgerConfig identifies the launch this deployment keeps books for
type LedgerConfig struct {
	LaunchID          string `mapstructure:"launch_id"`
	ChainID           string `mapstructure:"chain_id"`
	TokenDecimals     uint8  `mapstructure:"token_decimals"`
	WithdrawalAddress string `mapstructure:"withdrawal_address"`
}

// EthereumConfig contains custody wallet and RPC settings
type EthereumConfig struct {
	RPCURL         string `mapstructure:"rpc_url"`
	CustodyKey     string `mapstructure:"custody_key"`
	ReceiptTimeout int    `mapstructure:"receipt_timeout"` // seconds
}

// RefundSweeperConfig contains refund sweeper settings
type RefundSweeperConfig struct {
	BatchSize       int    `mapstructure:"batch_size"`
	WorkerPoolSize  int    `mapstructure:"worker_pool_size"`
	OperatorAddress string `mapstructure:"operator_address"`
}

// APIConfig is the configuration for the API service
type APIConfig struct {
	BaseConfig `mapstructure:",squash"`

	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Ethereum EthereumConfig `mapstructure:"ethereum"`
}

// SweeperConfig is the configuration for the refund sweeper service
type SweeperConfig struct {
	BaseConfig `mapstructure:",squash"`

	Database      DatabaseConfig      `mapstructure:"database"`
	NATS          NATSConfig          `mapstructure:"nats"`
	Ledger        LedgerConfig        `mapstructure:"ledger"`
	Ethereum      EthereumConfig      `mapstructure:"ethereum"`
	RefundSweeper RefundSweeperConfig `mapstructure:"refund_sweeper"`
}

// LoadAPIConfig loads the API service configuration
func LoadAPIConfig(configFile string, envPath string) (*APIConfig, error) {
	v := configureViper("api", configFile, envPath)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.idle_timeout", 120)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.conn_max_idle_time", 600)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream_name", "LAUNCH_EVENTS")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", 2)
	v.SetDefault("nats.connection_name", "launch-ledger-api")

	// Ledger defaults
	v.SetDefault("ledger.token_decimals", 18)

	// Ethereum defaults
	v.SetDefault("ethereum.receipt_timeout", 120)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg APIConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Ledger.LaunchID == "" {
		return nil, fmt.Errorf("ledger.launch_id is required")
	}
	if cfg.Ledger.ChainID == "" {
		return nil, fmt.Errorf("ledger.chain_id is required")
	}
	if cfg.Ledger.WithdrawalAddress == "" {
		return nil, fmt.Errorf("ledger.withdrawal_address is required")
	}

	return &cfg, nil
}

// LoadSweeperConfig loads the refund sweeper service configuration
func LoadSweeperConfig(configFile string, envPath string) (*SweeperConfig, error) {
	v := configureViper("sweeper", configFile, envPath)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 300)
	v.SetDefault("database.conn_max_idle_time", 600)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream_name", "LAUNCH_EVENTS")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", 2)
	v.SetDefault("nats.connection_name", "launch-ledger-sweeper")

	// Ledger defaults
	v.SetDefault("ledger.token_decimals", 18)

	// Ethereum defaults
	v.SetDefault("ethereum.receipt_timeout", 120)

	// Refund sweeper defaults
	v.SetDefault("refund_sweeper.batch_size", 100)
	v.SetDefault("refund_sweeper.worker_pool_size", 4)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg SweeperConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Ledger.LaunchID == "" {
		return nil, fmt.Errorf("ledger.launch_id is required")
	}
	if cfg.Ledger.ChainID == "" {
		return nil, fmt.Errorf("ledger.chain_id is required")
	}
	if cfg.RefundSweeper.OperatorAddress == "" {
		return nil, fmt.Errorf("refund_sweeper.operator_address is required")
	}

	return &cfg, nil
}

// configureViper sets up a viper instance with common settings
func configureViper(service string, configFile string, envPath string) *viper.Viper {
	loadEnv(envPath, service)

	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("cmd/" + service + "/")
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix("FF_LAUNCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindAllEnvVars(v)

	return v
}

// bindAllEnvVars explicitly binds environment variables for all known keys.
// AutomaticEnv alone does not surface env-only keys through Unmarshal.
func bindAllEnvVars(v *viper.Viper) {
	commonKeys := []string{
		// Base config
		"debug",
		"sentry_dsn",
		// Database config
		"database.host",
		"database.port",
		"database.user",
		"database.password",
		"database.dbname",
		"database.sslmode",
		"database.max_open_conns",
		"database.max_idle_conns",
		"database.conn_max_lifetime",
		"database.conn_max_idle_time",
		// NATS config
		"nats.url",
		"nats.stream_name",
		"nats.max_reconnects",
		"nats.reconnect_wait",
		"nats.connection_name",
		// Server config
		"server.host",
		"server.port",
		"server.read_timeout",
		"server.write_timeout",
		"server.idle_timeout",
		// Auth config
		"auth.jwt_public_key",
		"auth.api_keys",
		// Ledger config
		"ledger.launch_id",
		"ledger.chain_id",
		"ledger.token_decimals",
		"ledger.withdrawal_address",
		// Ethereum config
		"ethereum.rpc_url",
		"ethereum.custody_key",
		"ethereum.receipt_timeout",
		// Refund sweeper config
		"refund_sweeper.batch_size",
		"refund_sweeper.worker_pool_size",
		"refund_sweeper.operator_address",
	}

	for _, key := range commonKeys {
		_ = v.BindEnv(key)
	}
}

// loadEnv loads environment variables from the config directory
func loadEnv(envPath string, service string) {
	// Always try shared base first, then local, then optional per-service local.
	envFiles := []string{".env", ".env.local"}
	if service != "" {
		envFiles = append(envFiles, ".env."+service+".local")
	}

	// Default to config directory
	if envPath == "" {
		envPath = "config/"
	}

	for _, envFile := range envFiles {
		candidate := filepath.Join(envPath, envFile)
		_ = godotenv.Overload(candidate) // Overload lets later files override earlier ones
	}
}

// ChdirRepoRoot changes the current working directory to the repository root
func ChdirRepoRoot() {
	cwd, _ := os.Getwd()
	for range 5 {
		if _, err := os.Stat(filepath.Join(cwd, "config")); err == nil {
			_ = os.Chdir(cwd)
			return
		}
		cwd = filepath.Dir(cwd)
	}
}

// Seconds converts an integer second count into a duration
func Seconds(s int) time.Duration {
	return time.Duration(s) * time.Second
}
