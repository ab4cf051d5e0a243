package store

import (
	"errors"

	"qteams/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// roundQuestions scopes a query to the team's active round, in submission order.
func (s *Store) roundQuestions(team *models.Team) *gorm.DB {
	return s.db.Model(&models.Question{}).
		Where("team_id = ? AND round = ?", team.ID, team.Round).
		Order("created_at, id")
}

func (s *Store) RoundQuestions(team *models.Team) ([]models.Question, error) {
	var questions []models.Question
	err := s.roundQuestions(team).Find(&questions).Error
	return questions, err
}

func (s *Store) CountRoundQuestions(team *models.Team) (int, error) {
	var count int64
	err := s.db.Model(&models.Question{}).
		Where("team_id = ? AND round = ?", team.ID, team.Round).
		Count(&count).Error
	return int(count), err
}

func (s *Store) CountDoneRoundQuestions(team *models.Team) (int, error) {
	var count int64
	err := s.db.Model(&models.Question{}).
		Where("team_id = ? AND round = ? AND done = ?", team.ID, team.Round, true).
		Count(&count).Error
	return int(count), err
}

// FirstRoundQuestion returns the earliest submitted question of the round.
func (s *Store) FirstRoundQuestion(team *models.Team) (*models.Question, error) {
	var question models.Question
	if err := s.roundQuestions(team).First(&question).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

// NextUnansweredRoundQuestion returns the earliest round question nobody has
// answered yet, or nil when every question has answers.
func (s *Store) NextUnansweredRoundQuestion(team *models.Team) (*models.Question, error) {
	var question models.Question
	err := s.roundQuestions(team).
		Where("NOT EXISTS (?)", s.db.Model(&models.Answer{}).Select("1").Where("answers.question_id = questions.id")).
		First(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

// UserRoundQuestion returns userID's question for the active round, or nil.
func (s *Store) UserRoundQuestion(team *models.Team, userID uint) (*models.Question, error) {
	var question models.Question
	err := s.roundQuestions(team).Where("author_id = ?", userID).First(&question).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &question, nil
}

func (s *Store) GetQuestion(id uint) (*models.Question, error) {
	var question models.Question
	if err := s.db.First(&question, id).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

func (s *Store) CreateQuestion(question *models.Question) error {
	return s.db.Omit(clause.Associations).Create(question).Error
}

func (s *Store) UpdateQuestionText(question *models.Question) error {
	return s.db.Model(question).Updates(map[string]any{
		"question":     question.Text,
		"model_answer": question.ModelAnswer,
	}).Error
}

func (s *Store) MarkQuestionDone(id uint) error {
	return s.db.Model(&models.Question{}).Where("id = ?", id).Update("done", true).Error
}

// DeleteQuestion removes a question together with its answers.
func (s *Store) DeleteQuestion(id uint) error {
	if err := s.db.Where("question_id = ?", id).Delete(&models.Answer{}).Error; err != nil {
		return err
	}
	return s.db.Delete(&models.Question{}, id).Error
}

// Answers

func (s *Store) CreateAnswer(answer *models.Answer) error {
	return s.db.Omit(clause.Associations).Create(answer).Error
}

func (s *Store) GetAnswer(id uint) (*models.Answer, error) {
	var answer models.Answer
	if err := s.db.First(&answer, id).Error; err != nil {
		return nil, err
	}
	return &answer, nil
}

// AnswersByQuestion lists a question's answers in submission order.
func (s *Store) AnswersByQuestion(questionID uint) ([]models.Answer, error) {
	var answers []models.Answer
	err := s.db.Where("question_id = ?", questionID).
		Preload("Author").
		Order("created_at, id").
		Find(&answers).Error
	return answers, err
}

func (s *Store) CountAnswers(questionID uint) (int, error) {
	var count int64
	err := s.db.Model(&models.Answer{}).Where("question_id = ?", questionID).Count(&count).Error
	return int(count), err
}

func (s *Store) HasAnswered(questionID, userID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.Answer{}).
		Where("question_id = ? AND author_id = ?", questionID, userID).
		Count(&count).Error
	return count > 0, err
}

// RoundAnswers lists every answer given to the team's active round questions.
func (s *Store) RoundAnswers(team *models.Team) ([]models.Answer, error) {
	var answers []models.Answer
	err := s.db.
		Where("question_id IN (?)", s.db.Model(&models.Question{}).Select("id").
			Where("team_id = ? AND round = ?", team.ID, team.Round)).
		Order("id").
		Find(&answers).Error
	return answers, err
}

func (s *Store) SetAnswerScore(id uint, score uint) error {
	return s.db.Model(&models.Answer{}).Where("id = ?", id).Update("score", score).Error
}
