package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"shejire/models"
)

var (
	DB        *gorm.DB
	AppConfig Config

	licenseKeyMu sync.Mutex
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"-"`
	DB       int    `json:"db"`
}

type Config struct {
	Environment string `json:"environment"`
	AppVersion  string `json:"app_version"`
	ServerPort  string `json:"server_port"`

	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	EncryptionKey string `json:"-"`
	SentryDSN     string `json:"-"`

	// LicenseKey selects the current license. Activation rewrites it both in
	// memory and in EnvFile so it survives restarts.
	LicenseKey string `json:"license_key"`
	EnvFile    string `json:"env_file"`

	Redis RedisConfig `json:"redis"`

	// Bootstrap super admin, created on first migration when no super admin
	// exists.
	SuperAdminName     string `json:"super_admin_name"`
	SuperAdminEmail    string `json:"super_admin_email"`
	SuperAdminPhone    string `json:"super_admin_phone"`
	SuperAdminPassword string `json:"-"`

	RateLimitPublicLicense int `json:"rate_limit_public_license"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
}

func LoadConfig() error {
	AppConfig = Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		AppVersion:  getEnv("APP_VERSION", "1.0.0"),
		ServerPort:  getEnv("SERVER_PORT", "5000"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "shejire"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		SentryDSN:     getEnv("SENTRY_DSN", ""),

		LicenseKey: getEnv("LICENSE_KEY", ""),
		EnvFile:    getEnv("ENV_FILE", ".env"),

		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},

		SuperAdminName:     getEnv("SUPER_ADMIN_NAME", "Super Admin"),
		SuperAdminEmail:    getEnv("SUPER_ADMIN_EMAIL", ""),
		SuperAdminPhone:    getEnv("SUPER_ADMIN_PHONE", "70000000000"),
		SuperAdminPassword: getEnv("SUPER_ADMIN_PASSWORD", ""),

		RateLimitPublicLicense: getEnvAsInt("RATE_LIMIT_PUBLIC_LICENSE", 30),
	}

	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("Successfully connected to the database")
	log.Println("Starting database migration...")
	if err := models.Migrate(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	if err := models.EnsureSuperAdmin(
		DB,
		AppConfig.SuperAdminName,
		AppConfig.SuperAdminEmail,
		AppConfig.SuperAdminPhone,
		AppConfig.SuperAdminPassword,
	); err != nil {
		return fmt.Errorf("super admin bootstrap failed: %w", err)
	}
	if err := models.SeedTrialLicense(DB); err != nil {
		return fmt.Errorf("trial license seed failed: %w", err)
	}
	log.Println("Database migration completed")
	return nil
}

// SaveLicenseKey persists the activated license key into the env file and
// updates the in-memory config. The write is durable: activation must
// survive a process restart.
func SaveLicenseKey(licenseKey string) error {
	licenseKeyMu.Lock()
	defer licenseKeyMu.Unlock()

	env, err := godotenv.Read(AppConfig.EnvFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to read env file: %w", err)
		}
		env = map[string]string{}
	}
	env["LICENSE_KEY"] = licenseKey
	if err := godotenv.Write(env, AppConfig.EnvFile); err != nil {
		return fmt.Errorf("failed to write env file: %w", err)
	}

	AppConfig.LicenseKey = licenseKey
	return nil
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("License key configured: %t", AppConfig.LicenseKey != "")
	log.Printf("Redis enabled: %t", AppConfig.Redis.Enabled)
}
