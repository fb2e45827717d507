package model

import "time"

// EventKind distinguishes recorded clips from externally reported images.
type EventKind string

const (
	EventClip  EventKind = "clip"
	EventImage EventKind = "image"
)

// Event represents a saved clip or ingested image and its triggering label.
type Event struct {
	ID        int64     `json:"id"`
	UUID      string    `json:"uuid"`
	Kind      EventKind `json:"kind"`
	Label     string    `json:"label"`
	Filename  string    `json:"filename"`
	FilePath  string    `json:"filepath"`
	FileSize  int64     `json:"filesize"`
	Frames    int       `json:"frames"`
	Timestamp time.Time `json:"timestamp"`
}

// EventStats contains statistics about indexed events.
type EventStats struct {
	TotalEvents    int            `json:"total_events"`
	TotalSizeBytes int64          `json:"total_size_bytes"`
	PerKind        map[string]int `json:"per_kind"`
	PerLabel       map[string]int `json:"per_label"`
}
