package ingestion

import (
	"context"
	"time"

	"github.com/bookrelay-lab/bookrelay/internal/storage"
	"github.com/gin-gonic/gin"
)

// Publisher hands a serialized event to the durable queue.
type Publisher interface {
	Publish(ctx context.Context, body []byte, correlationID string) error
}

// Service accepts reservation events, relays them to the broker, and serves
// the raw event query endpoint the dashboard materializer reads from.
type Service struct {
	publisher Publisher
	store     storage.EventStore
	nowFn     func() time.Time
}

// NewService creates the ingestion service.
func NewService(publisher Publisher, store storage.EventStore) *Service {
	if publisher == nil {
		panic("ingestion: publisher must not be nil")
	}
	if store == nil {
		panic("ingestion: store must not be nil")
	}
	return &Service{
		publisher: publisher,
		store:     store,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RegisterRoutes registers the ingestion service routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/events", s.IngestHandler)
	r.GET("/api/events", s.ListEventsHandler)
}
