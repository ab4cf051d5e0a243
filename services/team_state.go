package services

import (
	"time"

	"qteams/models"
)

// TeamSnapshot is the viewer independent state broadcast after each
// mutation. It never contains model answers or answer texts.
type TeamSnapshot struct {
	TeamID            uint            `json:"team_id"`
	Name              string          `json:"name"`
	TopicID           uint            `json:"topic_id"`
	CreatorID         uint            `json:"creator_id"`
	State             models.Phase    `json:"state"`
	Mode              models.Mode     `json:"mode"`
	Round             uint            `json:"round"`
	CurrentQuestionID *uint           `json:"current_question_id"`
	QuestionNumber    int             `json:"question_number"`
	QuestionCount     int             `json:"question_count"`
	Members           []MemberScore   `json:"members"`
	MembersDone       int             `json:"members_done"`
	CurrentQuestion   *QuestionPrompt `json:"current_question,omitempty"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// MemberScore is one member's tally plus whether they owe an action in the
// current phase.
type MemberScore struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Right    uint   `json:"right"`
	Partial  uint   `json:"partial"`
	Wrong    uint   `json:"wrong"`
	Score    uint   `json:"score"`
	Done     bool   `json:"done"`
}

// QuestionPrompt is the public view of the current question.
type QuestionPrompt struct {
	ID          uint   `json:"id"`
	AuthorID    uint   `json:"author_id"`
	Question    string `json:"question"`
	AnswerCount int    `json:"answer_count"`
}

// TeamState is the snapshot as seen by one viewer.
type TeamState struct {
	*TeamSnapshot
	UserDone     bool             `json:"user_done"`
	UserQuestion *models.Question `json:"user_question,omitempty"`
	ModelAnswer  string           `json:"model_answer,omitempty"`
	Answers      []AnswerView     `json:"answers,omitempty"`
	// Connected lists the members with an open websocket. Only the hub
	// fills it.
	Connected []uint `json:"connected,omitempty"`
}

type AnswerView struct {
	ID       uint   `json:"id"`
	AuthorID uint   `json:"author_id"`
	Username string `json:"username"`
	Answer   string `json:"answer"`
	Score    *uint  `json:"score"`
}

// Member returns the score entry of userID, if present.
func (s *TeamSnapshot) Member(userID uint) (MemberScore, bool) {
	for _, m := range s.Members {
		if m.UserID == userID {
			return m, true
		}
	}
	return MemberScore{}, false
}

// userDone decides whether a user has nothing left to do in the phase.
// hasQuestion is whether they submitted a question this round, isAuthor
// whether they wrote the current question and hasAnswered whether they
// answered it.
func userDone(phase models.Phase, hasQuestion, hasCurrent, isAuthor, hasAnswered bool) bool {
	switch phase {
	case models.PhaseQuestion:
		return hasQuestion
	case models.PhaseAnswer:
		if !hasCurrent {
			return false
		}
		return isAuthor || hasAnswered
	default:
		return false
	}
}
