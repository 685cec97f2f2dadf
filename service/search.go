package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tenantcrm/events"
	"tenantcrm/models"
	"tenantcrm/utils"
)

const (
	SearchIndex        = "crm_entities"
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// SearchIndexSettings is the body used to create SearchIndex.
var SearchIndexSettings = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"tenant_id":   map[string]any{"type": "long"},
			"entity_type": map[string]any{"type": "keyword"},
			"entity_id":   map[string]any{"type": "long"},
			"display_id":  map[string]any{"type": "text", "fields": map[string]any{"raw": map[string]any{"type": "keyword"}}},
			"title":       map[string]any{"type": "text"},
			"text":        map[string]any{"type": "text"},
			"updated_at":  map[string]any{"type": "date"},
		},
	},
}

// SearchDocument is the indexed form of an entity.
type SearchDocument struct {
	TenantID   uint              `json:"tenant_id"`
	EntityType models.EntityType `json:"entity_type"`
	EntityID   uint              `json:"entity_id"`
	DisplayID  string            `json:"display_id,omitempty"`
	Title      string            `json:"title"`
	Text       string            `json:"text,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// SearchDocumentID is the index id of an entity.
func SearchDocumentID(tenantID uint, entity models.EntityType, id uint) string {
	return fmt.Sprintf("%d-%s-%d", tenantID, entity, id)
}

// DocumentFromEvent builds the index document carried by an event.
func DocumentFromEvent(evt events.Event) SearchDocument {
	return SearchDocument{
		TenantID:   evt.TenantID,
		EntityType: evt.EntityType,
		EntityID:   evt.EntityID,
		DisplayID:  evt.DisplayID,
		Title:      evt.Title,
		Text:       evt.Text,
		UpdatedAt:  evt.OccurredAt,
	}
}

type SearchQuery struct {
	Q     string            `form:"q" binding:"required"`
	Type  models.EntityType `form:"type"`
	Limit int               `form:"limit" binding:"omitempty,min=1,max=100"`
}

type SearchService struct {
	es utils.ElasticsearchClient
}

// NewSearchService accepts a nil client; searches then fail with
// ErrSearchUnavailable.
func NewSearchService(es utils.ElasticsearchClient) *SearchService {
	return &SearchService{es: es}
}

func (s *SearchService) Search(ctx context.Context, scope models.Scope, q SearchQuery) ([]SearchDocument, error) {
	if s.es == nil {
		return nil, ErrSearchUnavailable
	}
	text := strings.TrimSpace(q.Q)
	if text == "" {
		return nil, invalid("q", "must not be empty")
	}
	if q.Type != "" && !q.Type.Valid() {
		return nil, invalid("type", "unknown entity type %q", q.Type)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	limit = min(limit, maxSearchLimit)

	filter := []map[string]any{{"term": map[string]any{"tenant_id": scope.TenantID}}}
	if q.Type != "" {
		filter = append(filter, map[string]any{"term": map[string]any{"entity_type": q.Type}})
	}
	query := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"must": map[string]any{
					"multi_match": map[string]any{
						"query":     text,
						"fields":    []string{"title^3", "display_id^2", "text"},
						"fuzziness": "AUTO",
					},
				},
				"filter": filter,
			},
		},
	}

	hits, err := s.es.Search(ctx, SearchIndex, query)
	if err != nil {
		return nil, err
	}
	out := make([]SearchDocument, 0, len(hits))
	for _, raw := range hits {
		var doc SearchDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("skipping malformed search hit")
			continue
		}
		if doc.TenantID != scope.TenantID {
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}
