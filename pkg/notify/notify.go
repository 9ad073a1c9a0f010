package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/farmatrack/farmatrack-backend/pkg/config"
	"github.com/farmatrack/farmatrack-backend/pkg/logger"
)

// Notification is a pending alert notification for a role queue.
type Notification struct {
	AlertID   string    `json:"alert_id"`
	AlertType string    `json:"alert_type"`
	Priority  string    `json:"priority"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier maintains per-role alert notification queues in Redis.
// When Redis is unreachable the notifier degrades to a no-op: alerts are
// still persisted in the database, only the push queues are skipped.
type Notifier struct {
	client    *redis.Client
	logger    *logger.Logger
	available bool
}

// New connects to Redis. A failed connection is not fatal.
func New(cfg *config.RedisConfig, log *logger.Logger) *Notifier {
	n := &Notifier{logger: log}

	if cfg.Addr == "" {
		log.Warn().Msg("redis not configured, alert notifications disabled")
		return n
	}

	n.client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := n.client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).
			Msg("failed to connect to redis, alert notifications disabled")
		return n
	}

	n.available = true
	log.Info().Str("addr", cfg.Addr).Msg("connected to redis")
	return n
}

// Available reports whether the Redis backend is reachable.
func (n *Notifier) Available() bool {
	return n.available
}

func roleKey(role string) string {
	return "notifications:role:" + role
}

// Push adds a notification to the queues of the given roles.
// The alert ID keys the entry so repeated pushes update in place.
func (n *Notifier) Push(ctx context.Context, roles []string, notification Notification) error {
	if !n.available {
		return nil
	}

	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	for _, role := range roles {
		if err := n.client.HSet(ctx, roleKey(role), notification.AlertID, body).Err(); err != nil {
			n.logger.Warn().Err(err).Str("role", role).Msg("failed to push notification")
			return err
		}
	}
	return nil
}

// Remove drops a notification from the queues of the given roles.
// Used when an alert resolves before anyone consumed it.
func (n *Notifier) Remove(ctx context.Context, roles []string, alertID string) error {
	if !n.available {
		return nil
	}

	for _, role := range roles {
		if err := n.client.HDel(ctx, roleKey(role), alertID).Err(); err != nil {
			n.logger.Warn().Err(err).Str("role", role).Msg("failed to remove notification")
			return err
		}
	}
	return nil
}

// Pending returns the notifications queued for a role.
func (n *Notifier) Pending(ctx context.Context, role string) ([]Notification, error) {
	if !n.available {
		return nil, nil
	}

	values, err := n.client.HVals(ctx, roleKey(role)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}

	notifications := make([]Notification, 0, len(values))
	for _, v := range values {
		var notification Notification
		if err := json.Unmarshal([]byte(v), &notification); err != nil {
			n.logger.Warn().Err(err).Msg("skipping malformed notification")
			continue
		}
		notifications = append(notifications, notification)
	}
	return notifications, nil
}

// Health returns the health status of the Redis backend.
func (n *Notifier) Health(ctx context.Context) map[string]string {
	if n.client == nil {
		return map[string]string{"status": "disabled"}
	}

	ctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	if err := n.client.Ping(ctx).Err(); err != nil {
		return map[string]string{"status": "down", "error": err.Error()}
	}
	return map[string]string{"status": "up"}
}

// Close closes the Redis connection.
func (n *Notifier) Close() error {
	if n.client == nil {
		return nil
	}
	return n.client.Close()
}
