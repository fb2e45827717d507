package notify

import (
	"eventcam/internal/logger"
	"eventcam/internal/model"
)

// EventStore persists events. repository.EventRepository satisfies it.
type EventStore interface {
	Insert(event *model.Event) (int64, error)
}

// Indexer writes every event into the event index.
type Indexer struct {
	store  EventStore
	logger *logger.Logger
}

func NewIndexer(store EventStore, logger *logger.Logger) *Indexer {
	return &Indexer{store: store, logger: logger}
}

func (i *Indexer) HandleEvent(event model.Event) {
	id, err := i.store.Insert(&event)
	if err != nil {
		i.logger.Error("Failed to index %s event %s: %v", event.Kind, event.Filename, err)
		return
	}
	i.logger.Debug("Indexed %s as #%d", event.Filename, id)
}
