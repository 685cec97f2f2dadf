// Package events defines the domain events published after every committed
// mutation and the Kafka backed publisher that ships them.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tenantcrm/models"
	"tenantcrm/monitoring"
	"tenantcrm/utils"
)

const DefaultTopic = "crm_events"

// Event describes one change to a tenant owned entity.
type Event struct {
	Type       string            `json:"event"`
	TenantID   uint              `json:"tenant_id"`
	EntityType models.EntityType `json:"entity_type"`
	EntityID   uint              `json:"entity_id"`
	DisplayID  string            `json:"display_id,omitempty"`
	Title      string            `json:"title,omitempty"`
	Text       string            `json:"text,omitempty"`
	ActorID    uint              `json:"actor_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Name builds the event type, e.g. "lead_deleted".
func Name(entity models.EntityType, action models.AuditAction) string {
	return string(entity) + "_" + string(action)
}

// IsDelete reports whether the event removes its entity.
func (e Event) IsDelete() bool {
	return strings.HasSuffix(e.Type, "_"+string(models.AuditDeleted))
}

// Key partitions events by entity so per-entity ordering is kept.
func (e Event) Key() string {
	return strconv.FormatUint(uint64(e.TenantID), 10) + ":" + string(e.EntityType) + ":" +
		strconv.FormatUint(uint64(e.EntityID), 10)
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// KafkaPublisher writes events as JSON to a single topic.
type KafkaPublisher struct {
	producer utils.KafkaProducer
	topic    string
}

func NewKafkaPublisher(producer utils.KafkaProducer, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.producer.SendMessage(ctx, p.topic, []byte(evt.Key()), data); err != nil {
		monitoring.EventsPublished.WithLabelValues("error").Inc()
		return err
	}
	monitoring.EventsPublished.WithLabelValues("ok").Inc()
	return nil
}
