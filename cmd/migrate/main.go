package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"salon-chat/config"
	"salon-chat/internal/repository"
	"salon-chat/pkg/database"

	"gorm.io/gorm"
)

const usage = `
Salon Chat - Database CLI Tool

Usage:
  migrate [command] [flags]

Commands:
  up          Create or update the chat tables and indexes
  status      Show database connection and table status
  seed-dev    Seed staff, chats and messages for local development
  truncate    Truncate the chat tables (DANGEROUS)

Flags:
  -staff int      Staff members to create for seed-dev (default 5)
  -messages int   Messages per seeded chat (default 20)

Examples:
  go run cmd/migrate/main.go up
  go run cmd/migrate/main.go status
  go run cmd/migrate/main.go -staff 8 seed-dev
`

func main() {
	staffCount := flag.Int("staff", 5, "Staff members to create for seed-dev")
	messages := flag.Int("messages", 20, "Messages per seeded chat")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	command := flag.Arg(0)

	cfg := config.LoadConfig()
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	defer database.Close(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	switch command {
	case "up":
		runMigrationsUp(db)
	case "status":
		showStatus(ctx, db)
	case "seed-dev":
		runSeedDevelopment(ctx, db, &database.SeedConfig{StaffCount: *staffCount, MessagesPerChat: *messages})
	case "truncate":
		runTruncate(ctx, db)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

func runMigrationsUp(db *gorm.DB) {
	log.Println("Running migrations...")

	if err := repository.InitSchema(db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migrations completed successfully")
}

func showStatus(ctx context.Context, db *gorm.DB) {
	log.Println("Checking database status...")

	if err := database.Ping(ctx, db); err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}
	log.Println("Database connection: OK")

	tables := append([]string{"staff"}, database.OwnedTables...)
	for _, table := range tables {
		exists, count, err := database.TableCount(ctx, db, table)
		switch {
		case err != nil:
			log.Printf("Error checking table %s: %v", table, err)
		case exists:
			log.Printf("Table %-14s exists (%d rows)", table, count)
		default:
			log.Printf("Table %-14s does not exist", table)
		}
	}
}

func runSeedDevelopment(ctx context.Context, db *gorm.DB, cfg *database.SeedConfig) {
	log.Println("Seeding database (development mode)...")

	result, err := database.SeedDevelopment(ctx, db, cfg)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}

	log.Println("Seed summary:")
	for _, s := range result.Staff {
		log.Printf("   - staff %s (%s) %s", s.Name, s.Role, s.ID)
	}
	for _, c := range result.Chats {
		log.Printf("   - chat %s (%s) %s", c.Name, c.Kind, c.ID)
	}
	log.Printf("   - messages: %d", result.Messages)
}

func runTruncate(ctx context.Context, db *gorm.DB) {
	log.Println("WARNING: truncating all chat tables")

	if err := database.TruncateOwnedTables(ctx, db); err != nil {
		log.Fatalf("Truncate failed: %v", err)
	}

	log.Println("All chat tables truncated")
}
