package main

import (
	"fmt"
	"log"
	"os"

	store "golang-messaging-bridge/internal/adapters/db/postgres"
	"golang-messaging-bridge/internal/config"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func main() {
	_ = godotenv.Load()

	conf := config.FromEnv()

	fmt.Println("Connecting to database...")

	db, err := gorm.Open(postgres.Open(conf.DatabaseURL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	})
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}

	sqlDB, _ := db.DB()
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	fmt.Println("Running migrations...")

	if err := db.AutoMigrate(store.Models()...); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	var tables []string
	db.Raw("SELECT tablename FROM pg_tables WHERE schemaname = 'public'").Scan(&tables)

	if len(tables) == 0 {
		fmt.Println("no tables found")
		os.Exit(1)
	}

	fmt.Println("Tables ready:")
	for _, table := range tables {
		fmt.Printf("  - %s\n", table)
	}
}
