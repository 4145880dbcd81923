package entity

import (
	"time"
)

type Show struct {
	ShowID      string    `json:"show_id"`
	Title       string    `json:"title"`
	Venue       string    `json:"venue"`
	StartTime   time.Time `json:"start_time"`
	MaxCapacity int       `json:"max_capacity"`
	TicketPrice Money     `json:"ticket_price"`
	OrganizerID string    `json:"organizer_id"`
}

func (s Show) Validate() error {
	if s.ShowID == "" {
		return InvalidRequestf("show id must be set")
	}
	if s.Title == "" {
		return InvalidRequestf("title must be set")
	}
	if s.MaxCapacity <= 0 {
		return InvalidRequestf("max capacity must be greater than 0")
	}
	if !s.TicketPrice.IsPositive() {
		return InvalidRequestf("ticket price must be greater than 0")
	}
	if s.OrganizerID == "" {
		return InvalidRequestf("organizer id must be set")
	}
	return nil
}
