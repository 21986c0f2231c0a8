package models

import (
	"time"

	"tbs/src/types"
)

type Event struct {
	ID        uint              `gorm:"primarykey" json:"id"`
	Title     string            `json:"title,omitempty"`
	Name      string            `json:"name,omitempty"`
	Slug      string            `gorm:"uniqueIndex" json:"slug,omitempty"`
	About     *string           `json:"about,omitempty"`
	Location  string            `json:"location,omitempty"`
	DateTime  time.Time         `json:"date_time,omitempty"`
	Status    types.EventStatus `gorm:"default:'draft'" json:"status,omitempty"`
	CreatedBy uint              `json:"created_by,omitempty"`
	OpensAt   *time.Time        `json:"opens_at,omitempty"`
	Deadline  time.Time         `json:"deadline,omitempty"`

	Creator *User    `gorm:"foreignKey:created_by" json:"-"`
	Tickets []Ticket `json:"tickets,omitempty"`

	types.Timestamps
}
