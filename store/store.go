// Package store holds the gorm queries behind the team services. Every
// method runs against the handle it was built from, so the same queries
// work inside and outside a transaction.
package store

import (
	"context"
	"fmt"

	"qteams/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithContext returns a Store whose queries carry ctx.
func (s *Store) WithContext(ctx context.Context) *Store {
	return &Store{db: s.db.WithContext(ctx)}
}

// Transaction runs fn in a database transaction. Returning an error from
// fn rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Migrate creates or updates the schema.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.Topic{},
		&models.Team{},
		&models.Membership{},
		&models.Question{},
		&models.Answer{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Users

func (s *Store) CreateUser(user *models.User) error {
	return s.db.Create(user).Error
}

func (s *Store) GetUser(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Store) UserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Topics

type TopicFilter struct {
	Code string
	Name string
}

func (s *Store) ListTopics(filter TopicFilter) ([]models.Topic, error) {
	query := s.db.Order("code")
	if filter.Code != "" {
		query = query.Where("code = ?", filter.Code)
	}
	if filter.Name != "" {
		query = query.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Name+"%")
	}
	var topics []models.Topic
	err := query.Find(&topics).Error
	return topics, err
}

func (s *Store) GetTopic(id uint) (*models.Topic, error) {
	var topic models.Topic
	if err := s.db.First(&topic, id).Error; err != nil {
		return nil, err
	}
	return &topic, nil
}

func (s *Store) CreateTopic(topic *models.Topic) error {
	return s.db.Create(topic).Error
}

// UpsertTopics inserts topics keyed by code, renaming existing ones.
func (s *Store) UpsertTopics(topics []models.Topic) error {
	if len(topics) == 0 {
		return nil
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(&topics).Error
}
