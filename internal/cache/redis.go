package cache

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// recentKeep is how many messages per conversation stay cached
const recentKeep = 50

// RecentMessage cached copy of a persisted message
type RecentMessage struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"conversation_id"`
	SenderID       int64     `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

// RedisClient wraps Redis for the recent-message cache
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates and pings a Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	log.Printf("[Redis] Connected to %s", addr)
	return &RedisClient{client: client}, nil
}

func recentKey(conversationID int64) string {
	return "conversation:" + strconv.FormatInt(conversationID, 10) + ":recent"
}

// AddRecent appends a message to the conversation's recent list
func (r *RedisClient) AddRecent(ctx context.Context, conversationID int64, m *RecentMessage) error {
	key := recentKey(conversationID)

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -recentKeep, -1)
	pipe.Expire(ctx, key, 24*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[Redis] Failed to cache message: %v", err)
		return err
	}
	return nil
}

// GetRecent returns up to count cached messages, oldest first
func (r *RedisClient) GetRecent(ctx context.Context, conversationID int64, count int64) ([]RecentMessage, error) {
	results, err := r.client.LRange(ctx, recentKey(conversationID), -count, -1).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]RecentMessage, 0, len(results))
	for _, data := range results {
		var m RecentMessage
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// DeleteConversation drops a conversation's cached messages
func (r *RedisClient) DeleteConversation(ctx context.Context, conversationID int64) error {
	return r.client.Del(ctx, recentKey(conversationID)).Err()
}

// Health checks if Redis is reachable
func (r *RedisClient) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.client.Close()
}
