// AngelaMos | 2026
// publisher.go

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/config"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/entitlement"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/metrics"
)

const EventTypeEntitlementChanged = "entitlement.changed"

// EntitlementChanged is the message body downstream consumers receive.
type EntitlementChanged struct {
	ID           string           `json:"id"`
	Type         string           `json:"type"`
	UserID       string           `json:"user_id"`
	Cause        string           `json:"cause"`
	Tier         entitlement.Tier `json:"tier"`
	IsPremium    bool             `json:"is_premium"`
	PremiumUntil *time.Time       `json:"premium_until"`
	Lifetime     bool             `json:"lifetime"`
	PreviousTier entitlement.Tier `json:"previous_tier,omitempty"`
	Version      int64            `json:"version"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

func NewEntitlementChanged(c entitlement.Change) EntitlementChanged {
	return EntitlementChanged{
		ID:           uuid.NewString(),
		Type:         EventTypeEntitlementChanged,
		UserID:       c.UserID,
		Cause:        c.Cause,
		Tier:         c.After.Tier,
		IsPremium:    c.After.IsPremium(c.OccurredAt),
		PremiumUntil: c.After.PremiumUntil,
		Lifetime:     c.After.Lifetime,
		PreviousTier: c.Before.Tier,
		Version:      c.After.Version,
		OccurredAt:   c.OccurredAt,
	}
}

// KafkaPublisher emits entitlement changes keyed by user id, so one user's
// changes stay ordered within a partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewKafkaPublisher(
	producer sarama.SyncProducer,
	topic string,
	m *metrics.Metrics,
	logger *slog.Logger,
) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		topic:    topic,
		metrics:  m,
		logger:   logger,
	}
}

// NewSyncProducer builds the producer from config with idempotent delivery
// and full acknowledgement.
func NewSyncProducer(cfg config.KafkaConfig) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.Idempotent = true
	sc.Producer.Retry.Max = 3
	sc.Producer.Compression = sarama.CompressionSnappy
	sc.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return producer, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, change entitlement.Change) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event := NewEntitlementChanged(change)

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal entitlement event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(change.UserID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(EventTypeEntitlementChanged)},
			{Key: []byte("event_id"), Value: []byte(event.ID)},
		},
		Timestamp: event.OccurredAt,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	p.metrics.EventPublished(err == nil)
	if err != nil {
		return fmt.Errorf("publish entitlement event: %w", err)
	}

	p.logger.Debug("published entitlement event",
		"user_id", change.UserID,
		"cause", change.Cause,
		"partition", partition,
		"offset", offset,
	)

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// Noop is used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, entitlement.Change) error {
	return nil
}

func (Noop) Close() error {
	return nil
}
