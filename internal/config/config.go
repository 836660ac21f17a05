// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	AWS         AWSConfig
	Email       EmailConfig
	Scoring     ScoringConfig
	Certificate CertificateConfig
	I18n        I18nConfig
	Frontend    FrontendConfig
	Log         LogConfig
}

type FrontendConfig struct {
	BaseURL     string
	CORSOrigins []string
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
}

type JWTConfig struct {
	SecretKey string
	Issuer    string
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CertificatesDir string
}

type EmailConfig struct {
	Enabled      bool
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
}

// ScoringConfig points at the external approval/anomaly model service.
type ScoringConfig struct {
	Provider       string // "http" or "gemini"
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	GeminiAPIKey   string
	GeminiModel    string
	ScoredGroups   []string
	CodedGroup     string
}

type CertificateConfig struct {
	ConvertImagesOnCreate bool
	ConvertImagesOnUpdate bool
	ConvertImagesOnAdd    bool
	MaxSizeMB             int
	GenericComment        string
	OCRLanguage           string
	FormTitle             string
}

type I18nConfig struct {
	DefaultLocale string
	LocalesPath   string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			Host:         getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "healthfirst"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			Issuer:    getEnv("JWT_ISSUER", "healthfirst"),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "healthfirst-certificates"),
			CertificatesDir: getEnv("AWS_S3_CERTIFICATES_DIR", "certificates"),
		},
		Email: EmailConfig{
			Enabled:      getEnvAsBool("EMAIL_ENABLED", false),
			SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
			SMTPPort:     getEnv("SMTP_PORT", "587"),
			SMTPUsername: getEnv("SMTP_USERNAME", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
			FromEmail:    getEnv("FROM_EMAIL", "noreply@healthfirst.com"),
			FromName:     getEnv("FROM_NAME", "HealthFirst"),
		},
		Scoring: ScoringConfig{
			Provider:       getEnv("SCORING_PROVIDER", "http"),
			BaseURL:        getEnv("SCORING_BASE_URL", "http://localhost:8001"),
			APIKey:         getEnv("SCORING_API_KEY", ""),
			TimeoutSeconds: getEnvAsInt("SCORING_TIMEOUT", 30),
			GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
			GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
			ScoredGroups:   getEnvAsList("SCORING_GROUPS", []string{"enfermedad", "estudio"}),
			CodedGroup:     getEnv("SCORING_CODED_GROUP", "enfermedad"),
		},
		Certificate: CertificateConfig{
			ConvertImagesOnCreate: getEnvAsBool("CERT_CONVERT_IMAGES_ON_CREATE", true),
			ConvertImagesOnUpdate: getEnvAsBool("CERT_CONVERT_IMAGES_ON_UPDATE", true),
			ConvertImagesOnAdd:    getEnvAsBool("CERT_CONVERT_IMAGES_ON_ADD", false),
			MaxSizeMB:             getEnvAsInt("CERT_MAX_SIZE_MB", 10),
			GenericComment:        getEnv("EVALUATION_GENERIC_COMMENT", "Otro"),
			OCRLanguage:           getEnv("OCR_LANGUAGE", "spa"),
			FormTitle:             getEnv("CERT_FORM_TITLE", "Certificado Medico - HealthFirst"),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "es"),
			LocalesPath:   getEnv("LOCALES_PATH", "./internal/i18n/locales"),
		},
		Frontend: FrontendConfig{
			BaseURL:     getEnv("FRONTEND_URL", "http://localhost:5173"),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Scoring.Provider != "http" && c.Scoring.Provider != "gemini" {
		return fmt.Errorf("unknown scoring provider %q", c.Scoring.Provider)
	}

	if c.Scoring.Provider == "gemini" && c.Scoring.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when SCORING_PROVIDER=gemini")
	}

	if c.Certificate.MaxSizeMB <= 0 {
		return fmt.Errorf("CERT_MAX_SIZE_MB must be positive")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
