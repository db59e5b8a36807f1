package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/pubsub"
)

// PubSubBus wraps an in-process Bus and also publishes every message to a
// Google Cloud Pub/Sub topic, for deployments where more than one bot-layer
// consumer process needs the same dispatched-event stream durably.
//
// Grounded on internal/events/pubsub_bus.go's PubSubEventBus: embed the
// in-memory bus for local fan-out, publish with a per-chat ordering key so
// one chat's events are never delivered out of order downstream, and check
// the publish result asynchronously so a slow/unreachable Pub/Sub never
// adds latency to the publisher's hot path.
type PubSubBus struct {
	*Bus

	client *pubsub.Client
	topic  *pubsub.Topic
	logger *slog.Logger
}

// NewPubSubBus connects to projectID/topicID, creating the topic if it does
// not already exist.
func NewPubSubBus(ctx context.Context, projectID, topicID string, bufferSize int, logger *slog.Logger) (*PubSubBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bus: pubsub.NewClient: %w", err)
	}

	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("bus: topic.Exists: %w", err)
	}
	if !exists {
		topic, err = client.CreateTopic(ctx, topicID)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("bus: create topic: %w", err)
		}
	}
	topic.EnableMessageOrdering = true

	return &PubSubBus{
		Bus:    New(bufferSize),
		client: client,
		topic:  topic,
		logger: logger,
	}, nil
}

// Publish durably publishes msg to Pub/Sub (ordered by ChatMid) and also
// fans it out to local in-process subscribers via the embedded Bus.
func (p *PubSubBus) Publish(msg *Message) {
	p.publishDurable(msg)
	p.Bus.Publish(msg)
}

func (p *PubSubBus) publishDurable(msg *Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("bus: marshal message for pubsub", "error", err)
		return
	}

	result := p.topic.Publish(context.Background(), &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"chat-mid":     msg.ChatMid,
			"service-kind": fmt.Sprintf("%d", msg.ServiceKind),
			"time":         msg.Time.Format(time.RFC3339Nano),
		},
		OrderingKey: msg.ChatMid,
	})

	go func() {
		if _, err := result.Get(context.Background()); err != nil {
			p.logger.Warn("bus: pubsub publish failed", "error", err, "chat", msg.ChatMid)
		}
	}()
}

// Close releases the Pub/Sub client's resources.
func (p *PubSubBus) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
