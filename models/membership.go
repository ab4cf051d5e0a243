package models

import (
	"time"
)

// Membership is the per (user, team) tally of scored answers for the
// current round.
type Membership struct {
	ID       uint      `json:"id" gorm:"primaryKey"`
	UserID   uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_memberships_user_team"`
	TeamID   uint      `json:"team_id" gorm:"not null;uniqueIndex:idx_memberships_user_team;index"`
	Right    uint      `json:"right" gorm:"not null;default:0"`
	Partial  uint      `json:"partial" gorm:"not null;default:0"`
	Wrong    uint      `json:"wrong" gorm:"not null;default:0"`
	JoinedAt time.Time `json:"joined_at"`

	// Relationships
	User User `json:"user,omitempty"`
}

// Score is right*3 + partial.
func (m Membership) Score() uint {
	return m.Right*uint(ScoreRight) + m.Partial*uint(ScorePartial)
}
