// Package testutil provides database fixtures for qteams tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"qteams/models"
	"qteams/store"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated sqlite database in a temporary directory. The
// database is closed when the test completes.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "qteams.db")
	db, err := gorm.Open(sqlite.Open(path+"?_foreign_keys=on&_busy_timeout=5000"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := store.Migrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}

// CreateUser inserts a user with an unusable password hash.
func CreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()

	user := models.User{Username: username, PasswordHash: "x"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return &user
}

// CreateUsers inserts n users named user1..userN.
func CreateUsers(t testing.TB, db *gorm.DB, n int) []*models.User {
	t.Helper()

	users := make([]*models.User, n)
	for i := range users {
		users[i] = CreateUser(t, db, fmt.Sprintf("user%d", i+1))
	}
	return users
}

func CreateTopic(t testing.TB, db *gorm.DB, code, name string) *models.Topic {
	t.Helper()

	topic := models.Topic{Code: code, Name: name}
	if err := db.Create(&topic).Error; err != nil {
		t.Fatalf("failed to create topic %s: %v", code, err)
	}
	return &topic
}

// CreateTeam inserts a team in the open phase with the given members. The
// first member is the creator.
func CreateTeam(t testing.TB, db *gorm.DB, topic *models.Topic, name string, members ...*models.User) *models.Team {
	t.Helper()

	if len(members) == 0 {
		t.Fatalf("team %s needs a creator", name)
	}
	team := models.Team{
		CreatorID: members[0].ID,
		TopicID:   topic.ID,
		Name:      name,
		State:     models.PhaseOpen,
		Mode:      models.ModeTrain,
	}
	if err := db.Omit("Creator", "Topic", "Memberships").Create(&team).Error; err != nil {
		t.Fatalf("failed to create team %s: %v", name, err)
	}
	joined := time.Now()
	for i, m := range members {
		membership := models.Membership{
			UserID:   m.ID,
			TeamID:   team.ID,
			JoinedAt: joined.Add(time.Duration(i) * time.Millisecond),
		}
		if err := db.Omit("User").Create(&membership).Error; err != nil {
			t.Fatalf("failed to add member %s: %v", m.Username, err)
		}
	}
	return &team
}
