package models

import (
	"time"
)

type Team struct {
	ID                uint      `json:"id" gorm:"primaryKey"`
	CreatorID         uint      `json:"creator_id" gorm:"not null;index"`
	TopicID           uint      `json:"topic_id" gorm:"not null;index"`
	Name              string    `json:"name" gorm:"size:100;not null"`
	Round             uint      `json:"round" gorm:"not null;default:0"`
	CurrentQuestionID *uint     `json:"current_question_id"` // set only during answer and scoring
	State             Phase     `json:"state" gorm:"size:30;not null;default:'open'"`
	Mode              Mode      `json:"mode" gorm:"size:30;not null;default:'train'"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`

	// Relationships
	Creator     User         `json:"creator,omitempty" gorm:"foreignKey:CreatorID"`
	Topic       Topic        `json:"topic,omitempty"`
	Memberships []Membership `json:"members,omitempty" gorm:"foreignKey:TeamID"`
}

func (t *Team) IsCreator(userID uint) bool {
	return t.CreatorID == userID
}

func (t *Team) IsCurrentQuestion(questionID uint) bool {
	return t.CurrentQuestionID != nil && *t.CurrentQuestionID == questionID
}
