package database

import (
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/ManuelReschke/PixelMart/app/models"
	"github.com/ManuelReschke/PixelMart/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// DB is the shared connection pool, set by SetupDatabase.
var DB *gorm.DB

// GetDB returns the shared connection pool.
func GetDB() *gorm.DB {
	return DB
}

// DSN builds the MySQL data source name. innodb_lock_wait_timeout is sent as
// a session variable so a blocked wallet or ad row lock fails fast with error
// 1205 instead of waiting for the server default.
func DSN() string {
	lockTimeout, err := strconv.Atoi(env.GetEnv("WALLET_LOCK_TIMEOUT_SECONDS", "3"))
	if err != nil || lockTimeout < 1 {
		lockTimeout = 3
	}
	params := url.Values{}
	params.Set("charset", "utf8mb4")
	params.Set("parseTime", "True")
	params.Set("loc", "UTC")
	params.Set("innodb_lock_wait_timeout", strconv.Itoa(lockTimeout))

	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?%s",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
		params.Encode(),
	)
}

// SetupDatabase connects with retries and migrates the ad engine tables.
// The products table belongs to the storefront and is never migrated here.
func SetupDatabase() {
	var err error
	dsn := DSN()

	for i := 0; i < maxRetries; i++ {
		DB, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       dsn,   // data source name
			DefaultStringSize:         256,   // default size for string fields
			DisableDatetimePrecision:  true,  // disable datetime precision, which not supported before MySQL 5.6
			DontSupportRenameIndex:    true,  // drop & create when rename index, rename index not supported before MySQL 5.7, MariaDB
			DontSupportRenameColumn:   true,  // `change` when rename column, rename column not supported before MySQL 8, MariaDB
			SkipInitializeWithVersion: false, // auto configure based on currently MySQL version
		}), &gorm.Config{})
		if err == nil {
			err = DB.AutoMigrate(
				&models.Setting{},
				&models.AdCostPlan{},
				&models.Ad{},
				&models.Wallet{},
				&models.WalletTransaction{},
				&models.AdEvent{},
			)
			if err != nil {
				panic(fmt.Errorf("auto migrate: %w", err))
			}
			return
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			log.Printf("Retry in %v...", retryDelay)
			time.Sleep(retryDelay)
		}
	}

	if err != nil {
		panic(err)
	}
}
