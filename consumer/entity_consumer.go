// Package consumer applies domain events to the read side: the search index
// and the Redis cache of every instance.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"tenantcrm/events"
	"tenantcrm/models"
	"tenantcrm/monitoring"
	"tenantcrm/service"
	"tenantcrm/utils"
)

const retryDelay = 5 * time.Second

// EntityConsumer keeps the search index and caches in step with committed
// writes. cache and es may be nil.
type EntityConsumer struct {
	reader utils.KafkaReader
	cache  utils.RedisClient
	es     utils.ElasticsearchClient

	retryDelay time.Duration
	cancel     context.CancelFunc
	done       chan struct{}
	stopOnce   sync.Once
}

func NewEntityConsumer(reader utils.KafkaReader, cache utils.RedisClient, es utils.ElasticsearchClient) *EntityConsumer {
	return &EntityConsumer{
		reader:     reader,
		cache:      cache,
		es:         es,
		retryDelay: retryDelay,
		done:       make(chan struct{}),
	}
}

// Start runs the read loop until ctx is cancelled or Stop is called.
func (c *EntityConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	log.Info().Msg("starting entity event consumer")

	go func() {
		defer close(c.done)
		for ctx.Err() == nil {
			c.processMessage(ctx)
		}
	}()
}

// Stop ends the read loop and closes the reader.
func (c *EntityConsumer) Stop() {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
			<-c.done
		}
		if err := c.reader.Close(); err != nil {
			log.Error().Err(err).Msg("error closing kafka reader")
		}
	})
}

func (c *EntityConsumer) processMessage(ctx context.Context) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return
		}
		log.Warn().Err(err).Msg("kafka read error, will retry")
		select {
		case <-ctx.Done():
		case <-time.After(c.retryDelay):
		}
		return
	}

	result := "ok"
	if err := c.Handle(ctx, msg.Value); err != nil {
		result = "error"
		log.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to apply event")
	}
	monitoring.EventsConsumed.WithLabelValues(result).Inc()

	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit offset")
	}
}

// Handle applies one encoded event.
func (c *EntityConsumer) Handle(ctx context.Context, payload []byte) error {
	var evt events.Event
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if evt.TenantID == 0 || evt.EntityID == 0 || !evt.EntityType.Valid() {
		return fmt.Errorf("malformed event %q", evt.Type)
	}

	c.invalidate(ctx, evt)

	if c.es == nil {
		return nil
	}
	id := service.SearchDocumentID(evt.TenantID, evt.EntityType, evt.EntityID)
	if evt.IsDelete() {
		if err := c.es.DeleteDocument(ctx, service.SearchIndex, id); err != nil {
			return err
		}
		log.Debug().Str("doc", id).Msg("removed from search index")
		return nil
	}
	if err := c.es.IndexDocument(ctx, service.SearchIndex, id, service.DocumentFromEvent(evt)); err != nil {
		return err
	}
	log.Debug().Str("doc", id).Str("event", evt.Type).Msg("indexed")
	return nil
}

func (c *EntityConsumer) invalidate(ctx context.Context, evt events.Event) {
	if c.cache == nil {
		return
	}
	keys := []string{service.EntityCacheKey(evt.TenantID, evt.EntityType, evt.EntityID)}
	if evt.EntityType == models.EntityLead {
		keys = append(keys, service.BoardCacheKey(evt.TenantID))
	}
	if err := c.cache.DeleteFromCache(ctx, keys...); err != nil {
		log.Warn().Err(err).Strs("keys", keys).Msg("cache invalidation failed")
	}
}

var _ utils.KafkaReader = (*kafka.Reader)(nil)
