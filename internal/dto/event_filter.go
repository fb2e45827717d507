// EventFilters describe user-provided filters to narrow the event list.
package dto

import "time"

type EventFilters struct {
	Label      string
	Kind       string
	DateAfter  time.Time
	DateBefore time.Time
	TimeAfter  time.Time
	TimeBefore time.Time
	Limit      int
	Offset     int
}
