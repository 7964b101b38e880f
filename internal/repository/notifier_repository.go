package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// notificationChannel is consumed by the platform's delivery workers.
const notificationChannel = "notifications:outbound"

// notificationMessage is the wire form published to the delivery channel.
type notificationMessage struct {
	SubjectID string            `json:"subject_id"`
	Template  string            `json:"template"`
	Payload   map[string]string `json:"payload,omitempty"`
	SentAt    time.Time         `json:"sent_at"`
}

// RedisNotifier publishes notification requests to the shared delivery
// channel. Actual rendering and delivery happen downstream.
type RedisNotifier struct {
	client *redis.Client
}

// NewRedisNotifier constructs the publisher.
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Send publishes one notification request.
func (n *RedisNotifier) Send(ctx context.Context, subjectID, template string, payload map[string]string) error {
	if n.client == nil {
		return fmt.Errorf("redis notifier not configured")
	}
	msg := notificationMessage{
		SubjectID: subjectID,
		Template:  template,
		Payload:   payload,
		SentAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := n.client.Publish(ctx, notificationChannel, data).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
