package models

import (
	"time"
)

// Question is a member's contribution to a team round. TeamID and Round
// are kept after the round ends so the question stays in the history.
type Question struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	TeamID      *uint     `json:"team_id" gorm:"uniqueIndex:idx_questions_team_round_author"`
	Round       uint      `json:"round" gorm:"not null;default:0;uniqueIndex:idx_questions_team_round_author"`
	AuthorID    uint      `json:"author_id" gorm:"not null;uniqueIndex:idx_questions_team_round_author"`
	TopicID     uint      `json:"topic_id" gorm:"not null;index"`
	Text        string    `json:"question" gorm:"column:question;type:text;not null"`
	ModelAnswer string    `json:"model_answer" gorm:"type:text;not null"`
	Done        bool      `json:"done" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relationships
	Author User  `json:"author,omitempty" gorm:"foreignKey:AuthorID"`
	Topic  Topic `json:"topic,omitempty"`
}

// InRound reports whether the question belongs to the given team's active round.
func (q Question) InRound(team *Team) bool {
	return q.TeamID != nil && *q.TeamID == team.ID && q.Round == team.Round
}
