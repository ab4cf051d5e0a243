package store

import (
	"qteams/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TeamFilter struct {
	Name string
}

func (s *Store) CreateTeam(team *models.Team) error {
	return s.db.Omit(clause.Associations).Create(team).Error
}

// GetTeam loads a team with its creator, topic and members.
func (s *Store) GetTeam(id uint) (*models.Team, error) {
	var team models.Team
	err := s.withTeamRelations(s.db).First(&team, id).Error
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// LockTeam loads the bare team row with a row-level write lock. Drivers
// without row locks (sqlite) ignore the clause.
func (s *Store) LockTeam(id uint) (*models.Team, error) {
	var team models.Team
	err := s.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&team, id).Error
	if err != nil {
		return nil, err
	}
	return &team, nil
}

// SaveTeam writes the team's own columns, leaving associations alone.
func (s *Store) SaveTeam(team *models.Team) error {
	return s.db.Omit(clause.Associations).Save(team).Error
}

// DeleteTeam removes the team and its memberships. Its questions are kept
// for history and detached from the team.
func (s *Store) DeleteTeam(id uint) error {
	if err := s.db.Where("team_id = ?", id).Delete(&models.Membership{}).Error; err != nil {
		return err
	}
	if err := s.db.Model(&models.Question{}).Where("team_id = ?", id).
		Update("team_id", nil).Error; err != nil {
		return err
	}
	return s.db.Delete(&models.Team{}, id).Error
}

func (s *Store) ListTeams(filter TeamFilter) ([]models.Team, error) {
	query := s.withTeamRelations(s.db).Order("created_at DESC, id DESC")
	if filter.Name != "" {
		query = query.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Name+"%")
	}
	var teams []models.Team
	err := query.Find(&teams).Error
	return teams, err
}

// TeamsForUser lists the teams userID is a member of.
func (s *Store) TeamsForUser(userID uint) ([]models.Team, error) {
	var teams []models.Team
	err := s.withTeamRelations(s.db).
		Where("id IN (?)", s.db.Model(&models.Membership{}).Select("team_id").Where("user_id = ?", userID)).
		Order("created_at DESC, id DESC").
		Find(&teams).Error
	return teams, err
}

// TeamsForQuestion lists the teams the question was submitted to or that
// currently point at it.
func (s *Store) TeamsForQuestion(questionID uint) ([]models.Team, error) {
	var teams []models.Team
	err := s.db.
		Where("current_question_id = ? OR id IN (?)", questionID,
			s.db.Model(&models.Question{}).Select("team_id").Where("id = ? AND team_id IS NOT NULL", questionID)).
		Order("id").
		Find(&teams).Error
	return teams, err
}

func (s *Store) withTeamRelations(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Creator").
		Preload("Topic").
		Preload("Memberships", func(db *gorm.DB) *gorm.DB {
			return db.Order("joined_at, id")
		}).
		Preload("Memberships.User")
}

// Memberships

func (s *Store) Memberships(teamID uint) ([]models.Membership, error) {
	var memberships []models.Membership
	err := s.db.Where("team_id = ?", teamID).
		Preload("User").
		Order("joined_at, id").
		Find(&memberships).Error
	return memberships, err
}

func (s *Store) Membership(teamID, userID uint) (*models.Membership, error) {
	var membership models.Membership
	err := s.db.Where("team_id = ? AND user_id = ?", teamID, userID).First(&membership).Error
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

func (s *Store) IsMember(teamID, userID uint) (bool, error) {
	var count int64
	err := s.db.Model(&models.Membership{}).
		Where("team_id = ? AND user_id = ?", teamID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *Store) CountMembers(teamID uint) (int, error) {
	var count int64
	err := s.db.Model(&models.Membership{}).Where("team_id = ?", teamID).Count(&count).Error
	return int(count), err
}

func (s *Store) AddMembership(membership *models.Membership) error {
	return s.db.Omit(clause.Associations).Create(membership).Error
}

func (s *Store) RemoveMembership(teamID, userID uint) (bool, error) {
	result := s.db.Where("team_id = ? AND user_id = ?", teamID, userID).Delete(&models.Membership{})
	return result.RowsAffected > 0, result.Error
}

// ResetMemberships zeroes every member's tally for a new round.
func (s *Store) ResetMemberships(teamID uint) error {
	return s.db.Model(&models.Membership{}).Where("team_id = ?", teamID).
		Updates(map[string]any{"right": 0, "partial": 0, "wrong": 0}).Error
}

// SaveMembershipCounts writes the tally columns of m, zeros included.
func (s *Store) SaveMembershipCounts(m *models.Membership) error {
	return s.db.Model(&models.Membership{}).Where("id = ?", m.ID).
		Updates(map[string]any{"right": m.Right, "partial": m.Partial, "wrong": m.Wrong}).Error
}
