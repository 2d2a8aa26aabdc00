package models

import (
	"time"

	"gorm.io/datatypes"
)

type Round struct {
	ID          uint    `gorm:"primaryKey" json:"id"`
	RoundNumber int     `json:"round_number"`
	Status      string  `json:"status"` // calculating | finished
	Pot         float64 `json:"pot"`
	Winner      string  `json:"winner"`
	RequestID   string  `json:"request_id"`
	// Entrant identifiers at close time, in entry order.
	Entrants  datatypes.JSON `json:"entrants"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
