package config

import (
	"errors"
	"log"
	"time"

	"github.com/joho/godotenv"
)

var AppEnv Config

const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	MongoURI       string
	DBName         string
	JWTSecret      string
	Port           string
	StoreDriver    string
	RequestTimeout time.Duration
	AuditTimeout   time.Duration
	KafkaBrokers   []string
	AuditTopic     string
	TxMaxAttempts  int
}

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded:", err)
	}
	AppEnv = FromEnv()
}

// FromEnv builds a Config from the current process environment without
// touching .env files.
func FromEnv() Config {
	return Config{
		MongoURI:       getEnvOrDefault("MONGO_URI", ""),
		DBName:         getEnvOrDefault("DB_NAME", "marketplace"),
		JWTSecret:      getEnvOrDefault("JWT_SECRET", ""),
		Port:           getEnvOrDefault("PORT", "8080"),
		StoreDriver:    getEnvOrDefault("STORE_DRIVER", StoreMongo),
		RequestTimeout: getDurationEnv("REQUEST_TIMEOUT_SECONDS", 5, time.Second),
		AuditTimeout:   getDurationEnv("AUDIT_TIMEOUT_SECONDS", 3, time.Second),
		KafkaBrokers:   getListEnv("KAFKA_BROKERS"),
		AuditTopic:     getEnvOrDefault("AUDIT_TOPIC", "order-logs"),
		TxMaxAttempts:  getIntEnv("TX_MAX_ATTEMPTS", 5),
	}
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.StoreDriver {
	case StoreMongo:
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required when STORE_DRIVER=mongo")
		}
	case StoreMemory:
	default:
		return errors.New("STORE_DRIVER must be mongo or memory")
	}
	return nil
}
