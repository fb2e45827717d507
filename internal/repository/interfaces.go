package repository

import (
	"eventcam/internal/dto"
	"eventcam/internal/model"
)

// EventRepository defines the interface for the event index.
type EventRepository interface {
	// Create operations
	Insert(event *model.Event) (int64, error)
	InsertBatch(events []model.Event) (int, error)

	// Read operations
	GetByFilename(filename string) (*model.Event, error)
	GetAll(filter *dto.EventFilters) ([]model.Event, error)
	GetTotalCount(filter *dto.EventFilters) (int, error)
	GetLabels() ([]string, error)
	GetStats() (*model.EventStats, error)
	GetDirectorySize() (int64, error)

	// Delete operations
	DeleteByFilename(filename string) error
	DeleteAll() error
}
