package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBHost        string
	DBUser        string
	DBPassword    string
	DBName        string
	DBPort        string
	RedisAddr     string
	RedisPort     string
	RedisPassword string
	JWTSecret     string

	// Billing webhook
	WebhookSecret    string
	WebhookTolerance time.Duration

	// Generation engine
	EngineBaseURL string
	EngineTimeout time.Duration

	// Entitlement rules
	StandardCredits      int
	BonusCredits         int
	BonusEnabled         bool
	BonusDeadline        time.Time
	ProMonthlyCredits    int
	StarterPackCredits   int
	PowerPackCredits     int
	StarterPriceID       string
	PowerPriceID         string
	ProPriceID           string
	ReactivationCooldown time.Duration

	// Log configuration
	LogLevel      string
	LogFilename   string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c *Config) RedisFullAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisAddr, c.RedisPort)
}

func LoadConfig() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		// Ignore error if .env file is not found
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return &Config{
		DBHost:        os.Getenv("DB_HOST"),
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBName:        os.Getenv("DB_NAME"),
		DBPort:        os.Getenv("DB_PORT"),
		RedisAddr:     os.Getenv("REDIS_HOST"),
		RedisPort:     os.Getenv("REDIS_PORT"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),

		WebhookSecret:    os.Getenv("BILLING_WEBHOOK_SECRET"),
		WebhookTolerance: getEnvAsDuration("BILLING_WEBHOOK_TOLERANCE", 5*time.Minute),

		EngineBaseURL: getEnv("ENGINE_BASE_URL", "http://127.0.0.1:8000"),
		EngineTimeout: getEnvAsDuration("ENGINE_TIMEOUT", 60*time.Second),

		StandardCredits:      getEnvAsInt("STANDARD_CREDITS", 5),
		BonusCredits:         getEnvAsInt("BONUS_CREDITS", 10),
		BonusEnabled:         getEnvAsBool("BONUS_ENABLED", true),
		BonusDeadline:        getEnvAsTime("BONUS_DEADLINE", time.Date(2026, 2, 23, 18, 0, 0, 0, time.UTC)),
		ProMonthlyCredits:    getEnvAsInt("PRO_MONTHLY_CREDITS", 80),
		StarterPackCredits:   getEnvAsInt("STARTER_PACK_CREDITS", 20),
		PowerPackCredits:     getEnvAsInt("POWER_PACK_CREDITS", 40),
		StarterPriceID:       os.Getenv("PRICE_STARTER"),
		PowerPriceID:         os.Getenv("PRICE_POWER"),
		ProPriceID:           os.Getenv("PRICE_PRO"),
		ReactivationCooldown: getEnvAsDuration("REACTIVATION_COOLDOWN", 30*24*time.Hour),

		LogLevel:      getEnv("LOG_LEVEL", "INFO"),
		LogFilename:   getEnv("LOG_FILENAME", "logs/app.log"),
		LogMaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 3),
		LogMaxAge:     getEnvAsInt("LOG_MAX_AGE", 28),
		LogCompress:   getEnvAsBool("LOG_COMPRESS", true),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsTime(key string, defaultValue time.Time) time.Time {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.Parse(time.RFC3339, valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
