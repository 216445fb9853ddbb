package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/commandlinecommandos/campus-marketplace/internal/models"
)

type Config struct {
	ListenAddr string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	KafkaAddress string
	LogLevel     string
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func must(v string, name string) string {
	if v == "" {
		log.Fatalf("missing required env %s", name)
	}
	return v
}

func duration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration in %s: %v", k, err)
	}
	return d
}

func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	return &Config{
		ListenAddr: getenv("AUTH_ADDR", ":8080"),

		DBHost:     getenv("DB_HOST", "localhost"),
		DBPort:     getenv("DB_PORT", "5432"),
		DBUser:     must(os.Getenv("DB_USER"), "DB_USER"),
		DBPassword: must(os.Getenv("DB_PASSWORD"), "DB_PASSWORD"),
		DBName:     must(os.Getenv("DB_NAME"), "DB_NAME"),

		AccessSecret:  []byte(must(os.Getenv("JWT_SECRET"), "JWT_SECRET")),
		RefreshSecret: []byte(must(os.Getenv("REFRESH_SECRET"), "REFRESH_SECRET")),
		AccessTTL:     duration("ACCESS_TOKEN_TTL", time.Hour),
		RefreshTTL:    duration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		KafkaAddress: os.Getenv("KAFKA_ADDRESS"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs schema migration and seeds the role rows.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.Role{}, &models.RefreshToken{}); err != nil {
		return fmt.Errorf("db migrate: %w", err)
	}
	for _, name := range []string{models.RoleBuyer, models.RoleSeller, models.RoleAdmin} {
		var role models.Role
		if err := db.Where(models.Role{Name: name}).FirstOrCreate(&role).Error; err != nil {
			return fmt.Errorf("seed role %s: %w", name, err)
		}
	}
	return nil
}
