package models

import (
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/theset/backend/internal/config"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openPostgres(cfg *config.Config, user, password string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		cfg.DBHost, cfg.DBPort, user, password, cfg.DBName, cfg.DBSSLMode, cfg.DBTimeZone)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt: true,
	}

	if cfg.Env == "production" {
		gormConfig.Logger = logger.Default.LogMode(logger.Error)
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// InitDB opens the primary database connection.
func InitDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := openPostgres(cfg, cfg.DBUser, cfg.DBPassword)
	if err != nil {
		return nil, err
	}
	log.Println("Database connection established")
	return db, nil
}

// InitElevatedDB opens the service-role connection used as the retry path
// for permission failures. Returns nil without error when no service
// credential is configured.
func InitElevatedDB(cfg *config.Config) (*gorm.DB, error) {
	if !cfg.HasElevatedDB() {
		return nil, nil
	}
	db, err := openPostgres(cfg, cfg.DBServiceUser, cfg.DBServicePassword)
	if err != nil {
		return nil, err
	}
	log.Println("Elevated database connection established")
	return db, nil
}

// InitRedis initializes the Redis connection.
func InitRedis(cfg *config.Config) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	log.Println("Redis connection established")
	return client
}

// Migrate runs database migrations.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Artist{},
		&Venue{},
		&Show{},
		&Setlist{},
		&SetlistSong{},
		&Vote{},
		&SyncTask{},
		&SyncState{},
		&ErrorLog{},
	)
}
