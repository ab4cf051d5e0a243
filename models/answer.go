package models

import (
	"time"
)

type Answer struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	AuthorID   uint      `json:"author_id" gorm:"not null;uniqueIndex:idx_answers_author_question"`
	QuestionID uint      `json:"question_id" gorm:"not null;uniqueIndex:idx_answers_author_question;index"`
	Text       string    `json:"answer" gorm:"column:answer;type:text;not null"`
	Score      *uint     `json:"score"` // nil until the question's author scores it
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Relationships
	Author User `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
}

func (a Answer) Scored() bool {
	return a.Score != nil
}
