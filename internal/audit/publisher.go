package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Topic is the audit trail topic.
const Topic = "smart.audit"

// PublisherConfig holds broker settings for the audit publisher.
type PublisherConfig struct {
	// Brokers is a list of broker addresses. Empty disables auditing.
	Brokers []string
	// LingerMS is the time to wait before sending a batch.
	LingerMS int64
	// MaxRetries is the maximum number of retries for failed sends.
	MaxRetries int
}

// DefaultPublisherConfig returns settings suited to the low event rate
// of an interactive app.
func DefaultPublisherConfig(brokers []string) PublisherConfig {
	return PublisherConfig{
		Brokers:    brokers,
		LingerMS:   25,
		MaxRetries: 3,
	}
}

// Publisher sends audit events to Kafka. A nil Publisher is a valid
// no-op, which is how the app runs without a broker configured.
type Publisher struct {
	client *kgo.Client
	logger *zap.Logger
}

// NewPublisher connects to the configured brokers and ensures the
// audit topic exists. Returns (nil, nil) when no brokers are given.
func NewPublisher(ctx context.Context, cfg PublisherConfig, logger *zap.Logger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerLinger(time.Duration(cfg.LingerMS)*time.Millisecond),
		kgo.RecordRetries(cfg.MaxRetries),
		kgo.RequiredAcks(kgo.LeaderAck()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, logger); err != nil {
		client.Close()
		return nil, err
	}

	return &Publisher{client: client, logger: logger}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, logger *zap.Logger) error {
	adm := kadm.NewClient(client)

	existing, err := adm.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("failed to list topics: %w", err)
	}
	if existing.Has(Topic) {
		return nil
	}

	retention := "2592000000" // 30 days
	policy := "delete"
	configs := map[string]*string{
		"retention.ms":   &retention,
		"cleanup.policy": &policy,
	}
	if _, err := adm.CreateTopic(ctx, 3, 1, configs, Topic); err != nil {
		return fmt.Errorf("failed to create topic %s: %w", Topic, err)
	}
	logger.Info("created audit topic", zap.String("topic", Topic))
	return nil
}

// Publish sends one event asynchronously. Failures are logged and
// dropped; audit loss must not surface to the user.
func (p *Publisher) Publish(ctx context.Context, event *Event) {
	if p == nil || event == nil {
		return
	}
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal audit event",
			zap.String("event_type", string(event.EventType)),
			zap.Error(err))
		return
	}

	record := &kgo.Record{
		Topic: Topic,
		Key:   []byte(event.SessionID),
		Value: value,
	}
	p.client.Produce(ctx, record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("failed to produce audit event",
				zap.String("event_type", string(event.EventType)),
				zap.Error(err))
		}
	})
}

// Emit builds and publishes an event in one call, logging instead of
// returning on any error.
func (p *Publisher) Emit(ctx context.Context, eventType EventType, sessionID string, data interface{}) {
	if p == nil {
		return
	}
	event, err := NewEvent(eventType, sessionID, data)
	if err != nil {
		p.logger.Error("failed to build audit event",
			zap.String("event_type", string(eventType)),
			zap.Error(err))
		return
	}
	p.Publish(ctx, event)
}

// Close flushes buffered records and releases the Kafka client.
func (p *Publisher) Close(ctx context.Context) error {
	if p == nil {
		return nil
	}
	if err := p.client.Flush(ctx); err != nil {
		p.logger.Warn("audit flush incomplete", zap.Error(err))
	}
	p.client.Close()
	return nil
}
