package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"cloud.google.com/go/pubsub"
)

// PubSubBackend publishes alerts and health checks to a Google Cloud Pub/Sub
// topic so downstream systems (pagers, dashboards) can consume them. Sends
// are fire-and-forget; the client batches and retries in the background.
type PubSubBackend struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubBackend creates the client and verifies the topic exists. It
// authenticates using Application Default Credentials.
func NewPubSubBackend(ctx context.Context, projectID, topicID string) (*PubSubBackend, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	exists, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check pubsub topic %q: %w", topicID, err)
	}
	if !exists {
		_ = client.Close()
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", topicID, projectID)
	}
	return &PubSubBackend{client: client, topic: topic}, nil
}

func (b *PubSubBackend) publish(ctx context.Context, kind string, payload any, attrs map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	if attrs == nil {
		attrs = make(map[string]string, 1)
	}
	attrs["kind"] = kind
	b.topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	return nil
}

// SendMetric publishes a single named observation.
func (b *PubSubBackend) SendMetric(ctx context.Context, name string, value float64, tags map[string]string) error {
	attrs := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		attrs[k] = v
	}
	return b.publish(ctx, "metric", map[string]any{"name": name, "value": value, "tags": tags}, attrs)
}

// SendAlert publishes the alert as JSON with severity as an attribute.
func (b *PubSubBackend) SendAlert(ctx context.Context, alert Alert) error {
	return b.publish(ctx, "alert", alert, map[string]string{
		"rule":     alert.Rule,
		"severity": alert.Severity.String(),
	})
}

// SendHealthCheck publishes the health snapshot.
func (b *PubSubBackend) SendHealthCheck(ctx context.Context, result HealthCheckResult) error {
	return b.publish(ctx, "health_check", result, map[string]string{
		"status": string(result.Status),
		"ts":     strconv.FormatInt(result.Timestamp.Unix(), 10),
	})
}

// Close stops the topic publisher and the underlying client.
func (b *PubSubBackend) Close() error {
	b.topic.Stop()
	if err := b.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
