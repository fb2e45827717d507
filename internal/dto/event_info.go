package dto

import (
	"encoding/json"
	"time"
)

// EventInfo represents a saved clip or image in the event list.
type EventInfo struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	Label     string    `json:"label"`
	Date      time.Time `json:"date"`
	TimeOfDay time.Time `json:"timeOfDay"`
	Size      int64     `json:"size"`
	Frames    int       `json:"frames,omitempty"`
}

// MarshalJSON customizes JSON output for EventInfo to format date and time-of-day.
func (e EventInfo) MarshalJSON() ([]byte, error) {
	type Alias EventInfo
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      e.Date.Format("02-01-2006"),
		TimeOfDay: e.TimeOfDay.Format("15:04:05"),
		Alias:     (Alias)(e),
	})
}
