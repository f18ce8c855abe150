package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status presence states
type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
)

// Data presence record stored in Redis
type Data struct {
	UserID        int64  `json:"user_id"`
	Status        Status `json:"status"`
	LastHeartbeat int64  `json:"last_heartbeat"`
	ServerID      string `json:"server_id"` // reserved for multi-server deployments
}

// Manager mirrors in-process presence into Redis with a TTL so the REST API
// (and eventually other server processes) can observe who is online. Delivery
// targeting inside this process never reads it; the in-memory registry is
// authoritative there.
type Manager struct {
	client   *redis.Client
	serverID string
	ctx      context.Context
}

// NewManager creates a presence Manager
func NewManager(addr, password string, db int, serverID string) *Manager {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &Manager{
		client:   rdb,
		serverID: serverID,
		ctx:      context.Background(),
	}
}

func (m *Manager) userKey(userID int64) string {
	return fmt.Sprintf("presence:user:%d", userID)
}

// Connected marks an identity online. Satisfies the realtime hub's notifier.
func (m *Manager) Connected(userID int64) {
	if err := m.set(userID, StatusOnline); err != nil {
		log.Printf("[Presence] failed to mark user %d online: %v", userID, err)
	}
}

// Disconnected marks an identity offline
func (m *Manager) Disconnected(userID int64) {
	if err := m.client.Del(m.ctx, m.userKey(userID)).Err(); err != nil {
		log.Printf("[Presence] failed to mark user %d offline: %v", userID, err)
		return
	}
	m.publish(Data{UserID: userID, Status: StatusOffline, ServerID: m.serverID})
}

func (m *Manager) set(userID int64, status Status) error {
	data := Data{
		UserID:        userID,
		Status:        status,
		LastHeartbeat: time.Now().Unix(),
		ServerID:      m.serverID,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	// 60s TTL; client pings refresh it via Heartbeat
	if err := m.client.Set(m.ctx, m.userKey(userID), jsonData, 60*time.Second).Err(); err != nil {
		return err
	}
	m.publish(data)
	return nil
}

// Heartbeat extends the TTL of an online identity. Satisfies the realtime
// hub's notifier; a key that already expired is re-marked online.
func (m *Manager) Heartbeat(userID int64) {
	ok, err := m.client.Expire(m.ctx, m.userKey(userID), 60*time.Second).Result()
	if err != nil {
		log.Printf("[Presence] heartbeat for user %d failed: %v", userID, err)
		return
	}
	if !ok {
		m.Connected(userID)
	}
}

// Get returns one identity's presence; nil means offline
func (m *Manager) Get(userID int64) (*Data, error) {
	val, err := m.client.Get(m.ctx, m.userKey(userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var data Data
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetMulti returns presence for several identities in one round trip
func (m *Manager) GetMulti(userIDs []int64) (map[int64]*Data, error) {
	if len(userIDs) == 0 {
		return map[int64]*Data{}, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = m.userKey(id)
	}

	results, err := m.client.MGet(m.ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	presenceMap := make(map[int64]*Data)
	for i, result := range results {
		if result == nil {
			continue // offline
		}

		strVal, ok := result.(string)
		if !ok {
			continue
		}

		var data Data
		if err := json.Unmarshal([]byte(strVal), &data); err == nil {
			presenceMap[userIDs[i]] = &data
		}
	}

	return presenceMap, nil
}

func (m *Manager) publish(data Data) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	if err := m.client.Publish(m.ctx, "presence_updates", jsonData).Err(); err != nil {
		log.Printf("[Presence] publish failed: %v", err)
	}
}

// Close closes the Redis connection
func (m *Manager) Close() error {
	return m.client.Close()
}
