package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Quick schema and data sanity check against a running database.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		envOr("DB_HOST", "localhost"),
		envOr("DB_PORT", "5432"),
		envOr("DB_USER", "postgres"),
		os.Getenv("DB_PASSWORD"),
		envOr("DB_NAME", "postit"),
		envOr("DB_SSLMODE", "disable"),
		envOr("DB_TIMEZONE", "UTC"),
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	fmt.Println("Connected to database")
	fmt.Println()

	// last_read_at is the unread-count cursor; older deployments miss it
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.columns
			WHERE table_name = 'conversation_members'
			AND column_name = 'last_read_at'
		)
	`
	if err := db.Raw(query).Scan(&exists).Error; err != nil {
		log.Fatal("Failed to check last_read_at column:", err)
	}
	fmt.Printf("last_read_at column exists: %v\n", exists)
	if !exists {
		fmt.Println("WARNING: run the server once so AutoMigrate adds last_read_at")
	}
	fmt.Println()

	tables := []string{"users", "posts", "post_likes", "comments", "conversations", "conversation_members", "messages"}
	fmt.Println("Row counts:")
	for _, t := range tables {
		var count int64
		if err := db.Table(t).Count(&count).Error; err != nil {
			fmt.Printf("  - %s: ERROR (%v)\n", t, err)
			continue
		}
		fmt.Printf("  - %s: %d\n", t, count)
	}
	fmt.Println()

	type StatusStats struct {
		Total     int64
		Active    int64
		LeftCount int64
		NullCount int64
	}
	var stats StatusStats
	query = `
		SELECT
			COUNT(*) as total,
			COUNT(CASE WHEN status = 'ACTIVE' THEN 1 END) as active,
			COUNT(CASE WHEN status = 'LEFT' THEN 1 END) as left_count,
			COUNT(CASE WHEN status IS NULL THEN 1 END) as null_count
		FROM conversation_members
	`
	if err := db.Raw(query).Scan(&stats).Error; err != nil {
		log.Fatal("Failed to get membership statistics:", err)
	}
	fmt.Println("Membership status:")
	fmt.Printf("  - Total: %d\n", stats.Total)
	fmt.Printf("  - ACTIVE: %d\n", stats.Active)
	fmt.Printf("  - LEFT: %d\n", stats.LeftCount)
	fmt.Printf("  - NULL: %d\n", stats.NullCount)
	fmt.Println()

	type MessageInfo struct {
		ID             int64
		ConversationID int64
		SenderID       *int64
		Type           string
		CreatedAt      string
	}
	var messages []MessageInfo
	query = `
		SELECT id, conversation_id, sender_id, type, created_at
		FROM messages
		ORDER BY id DESC
		LIMIT 10
	`
	if err := db.Raw(query).Scan(&messages).Error; err != nil {
		log.Fatal("Failed to get recent messages:", err)
	}
	fmt.Println("Recent messages (last 10):")
	for _, m := range messages {
		sender := "SYSTEM"
		if m.SenderID != nil {
			sender = fmt.Sprintf("%d", *m.SenderID)
		}
		fmt.Printf("  - ID: %d, Conversation: %d, Sender: %s, Type: %s\n",
			m.ID, m.ConversationID, sender, m.Type)
	}
}

func envOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
