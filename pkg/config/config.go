package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/agentcord/agentflow/iam/auth"
)

// Config configuración principal de la aplicación
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     auth.Config
	Engine   EngineConfig
	Channels ChannelsConfig
	Lead     LeadConfig
	Storage  StorageConfig
	Metrics  MetricsConfig
}

// ServerConfig configuración del servidor HTTP
type ServerConfig struct {
	Port            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig configuración de PostgreSQL
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configuración de Redis
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// EngineConfig parámetros del motor de automatización
type EngineConfig struct {
	NodeProcessTimeout time.Duration
	AutoChainLimit     int
	IdentityLockTTL    time.Duration
	IdentityLockWait   time.Duration
	RequireAPIKey      bool
}

// ChannelsConfig URLs de los servicios de canal que entregan mensajes
type ChannelsConfig struct {
	NodeProcessURLs map[string]string
	ProcessPath     string
}

// LeadConfig servicio externo de gestión de leads
type LeadConfig struct {
	BaseURL string
	Enabled bool
}

// StorageConfig archivado de payloads en S3
type StorageConfig struct {
	Enabled         bool
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// MetricsConfig exposición de métricas Prometheus
type MetricsConfig struct {
	Enabled bool
}

// Load carga la configuración desde variables de entorno
func Load() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			ReadTimeout:     getDurationEnv("READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getDurationEnv("WRITE_TIMEOUT", 10*time.Second),
			ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", getEnv("POSTGRES_HOST", "localhost")),
			Port:            getEnv("DB_PORT", getEnv("POSTGRES_PORT", "5432")),
			User:            getEnv("DB_USER", getEnv("POSTGRES_USER", "postgres")),
			Password:        getEnv("DB_PASSWORD", getEnv("POSTGRES_PASSWORD", "postgres")),
			DBName:          getEnv("DB_NAME", getEnv("POSTGRES_DB", "agentflow")),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Auth: LoadAuthConfig(),
		Engine: EngineConfig{
			NodeProcessTimeout: getDurationEnv("NODE_PROCESS_TIMEOUT", 30*time.Second),
			AutoChainLimit:     getIntEnv("AUTO_CHAIN_LIMIT", 10),
			IdentityLockTTL:    getDurationEnv("IDENTITY_LOCK_TTL", 30*time.Second),
			IdentityLockWait:   getDurationEnv("IDENTITY_LOCK_WAIT", 10*time.Second),
			RequireAPIKey:      getBoolEnv("WEBHOOK_REQUIRE_API_KEY", false),
		},
		Channels: ChannelsConfig{
			NodeProcessURLs: map[string]string{
				"whatsapp":  getEnv("WHATSAPP_SERVICE_URL", "http://localhost:8017"),
				"email":     getEnv("EMAIL_SERVICE_URL", "http://localhost:8019"),
				"sms":       getEnv("SMS_SERVICE_URL", "http://localhost:8020"),
				"facebook":  getEnv("FACEBOOK_SERVICE_URL", "http://localhost:8021"),
				"instagram": getEnv("INSTAGRAM_SERVICE_URL", "http://localhost:8022"),
			},
			ProcessPath: getEnv("CHANNEL_PROCESS_PATH", "/channel/process-node"),
		},
		Lead: LeadConfig{
			BaseURL: getEnv("LEAD_MANAGEMENT_URL", ""),
			Enabled: getEnv("LEAD_MANAGEMENT_URL", "") != "",
		},
		Storage: StorageConfig{
			Enabled:         getBoolEnv("PAYLOAD_ARCHIVE_ENABLED", false),
			Bucket:          getEnv("PAYLOAD_ARCHIVE_BUCKET", ""),
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("METRICS_ENABLED", true),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate valida la configuración
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Engine.AutoChainLimit < 1 {
		return fmt.Errorf("AUTO_CHAIN_LIMIT must be at least 1")
	}
	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("PAYLOAD_ARCHIVE_BUCKET is required when archiving is enabled")
	}

	// Validar configuración de Auth
	if err := c.Auth.Validate(); err != nil {
		return fmt.Errorf("invalid auth config: %w", err)
	}

	return nil
}

// GetDSN retorna el DSN de PostgreSQL
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// GetAddr retorna la dirección de Redis
func (c *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

// NodeProcessURL resuelve la URL del servicio de canal para un canal dado
func (c *ChannelsConfig) NodeProcessURL(channel string) (string, bool) {
	base, ok := c.NodeProcessURLs[channel]
	if !ok || base == "" {
		return "", false
	}
	return base + c.ProcessPath, true
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// LoadAuthConfig carga la configuración de autenticación desde variables de entorno
func LoadAuthConfig() auth.Config {
	return auth.Config{
		JWT: auth.JWTConfig{
			SecretKey:      getEnv("JWT_SECRET", "default-secret-change-in-production"),
			AccessTokenTTL: getDurationEnv("ACCESS_TOKEN_TTL", 24*time.Hour),
			Issuer:         getEnv("JWT_ISSUER", "agentflow"),
		},
	}
}
