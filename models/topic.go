package models

import (
	"time"
)

type Topic struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Code      string    `json:"code" gorm:"size:20;uniqueIndex;not null"`
	Name      string    `json:"name" gorm:"size:100;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t Topic) String() string {
	return t.Code + " " + t.Name
}
