// EventsData is a paginated response payload for the event list.
package dto

type EventsData struct {
	Events      []EventInfo `json:"events"`
	EventsDir   string      `json:"eventsDir"`
	Size        int64       `json:"size"`
	Length      int         `json:"length"`
	TotalPages  int         `json:"totalPages"`
	CurrentPage int         `json:"currentPage"`
	Limit       int         `json:"pageSize"`
	Labels      []string    `json:"labels"`
}
