package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Azure      AzureConfig
	Identity   IdentityConfig
	Completion CompletionConfig
	Logging    LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	Environment     string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AzureConfig holds Azure service configuration
type AzureConfig struct {
	OpenAI  OpenAIConfig
	Storage StorageConfig
}

// OpenAIConfig holds Azure OpenAI configuration. Optional: when the endpoint
// is empty the visit summary falls back to a deterministic template.
type OpenAIConfig struct {
	Endpoint   string
	APIKey     string
	Deployment string
}

// StorageConfig holds Azure Blob Storage configuration
type StorageConfig struct {
	AccountName        string
	AccountKey         string
	ConnectionString   string
	SignatureContainer string
	ReportContainer    string
}

// IdentityConfig holds the external identity provider configuration
type IdentityConfig struct {
	BaseURL          string
	APIKey           string
	RefreshThreshold time.Duration
}

// CompletionConfig tunes the visit completion pipeline
type CompletionConfig struct {
	DebounceInterval time.Duration
	SaveTimeout      time.Duration
	LookupTimeout    time.Duration
	ReportTimeout    time.Duration
	HintTimeout      time.Duration
	MaxAttempts      int
	InitialBackoff   time.Duration
	GlobalTimeout    time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	// Bind specific environment variables
	bindEnvVars(v)

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.maxopenconns", 25)
	v.SetDefault("database.maxidleconns", 5)
	v.SetDefault("database.connmaxlifetime", 5*time.Minute)

	// Azure Storage defaults
	v.SetDefault("azure.storage.signaturecontainer", "visit-signatures")
	v.SetDefault("azure.storage.reportcontainer", "service-reports")

	// Identity defaults
	v.SetDefault("identity.refreshthreshold", 30*time.Minute)

	// Completion pipeline defaults
	v.SetDefault("completion.debounceinterval", 2*time.Second)
	v.SetDefault("completion.savetimeout", 60*time.Second)
	v.SetDefault("completion.lookuptimeout", 15*time.Second)
	v.SetDefault("completion.reporttimeout", 30*time.Second)
	v.SetDefault("completion.hinttimeout", 10*time.Second)
	v.SetDefault("completion.maxattempts", 3)
	v.SetDefault("completion.initialbackoff", 1500*time.Millisecond)
	v.SetDefault("completion.globaltimeout", 120*time.Second)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.environment", "ENV", "ENVIRONMENT")

	// Database
	v.BindEnv("database.url", "DATABASE_URL")

	// Azure OpenAI
	v.BindEnv("azure.openai.endpoint", "AZURE_OPENAI_ENDPOINT")
	v.BindEnv("azure.openai.apikey", "AZURE_OPENAI_API_KEY")
	v.BindEnv("azure.openai.deployment", "AZURE_OPENAI_DEPLOYMENT")

	// Azure Storage
	v.BindEnv("azure.storage.accountname", "AZURE_STORAGE_ACCOUNT_NAME")
	v.BindEnv("azure.storage.accountkey", "AZURE_STORAGE_ACCOUNT_KEY")
	v.BindEnv("azure.storage.connectionstring", "AZURE_STORAGE_CONNECTION_STRING")

	// Identity provider
	v.BindEnv("identity.baseurl", "IDENTITY_BASE_URL")
	v.BindEnv("identity.apikey", "IDENTITY_API_KEY")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate required fields
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}

	if c.Azure.Storage.AccountName != "" && c.Azure.Storage.AccountKey == "" {
		return fmt.Errorf("azure.storage.accountkey is required when an account name is set")
	}

	if c.Completion.MaxAttempts < 1 {
		return fmt.Errorf("completion.maxattempts must be at least 1")
	}

	if c.Completion.GlobalTimeout <= 0 {
		return fmt.Errorf("completion.globaltimeout must be positive")
	}

	return nil
}
