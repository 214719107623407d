package models

import (
	"time"

	"github.com/lib/pq"
)

// Complaint is a report filed against a partner.
type Complaint struct {
	ID             uint   `gorm:"primaryKey"`
	ReporterID     string `gorm:"index"`
	TargetID       string `gorm:"index"`
	RoomID         string
	Reason         string
	Weight         int
	LoggedMessages pq.StringArray `gorm:"type:text[]"`
	Status         string         // "new", "confirmed", "dismissed"
	CreatedAt      time.Time
}
