package services

import (
	"fmt"
	"testing"

	"trivianight/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Category{},
		&models.Question{},
		&models.Game{},
		&models.Team{},
		&models.UsageEntry{},
	))
	return db
}

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newTestStack(t *testing.T) (*gorm.DB, *UsageStore, *UsageCache) {
	t.Helper()

	db := newTestDB(t)
	store := NewUsageStore(db)
	cache := NewUsageCache(store, newTestRedis(t))
	return db, store, cache
}

func makeQuestion(text, answer, difficulty string) models.Question {
	return models.Question{
		PublicID:   uuid.NewString(),
		Text:       text,
		Answer:     answer,
		Difficulty: difficulty,
	}
}

// makePool builds perDifficulty questions for each of the three tiers.
func makePool(slug string, perDifficulty int) []models.Question {
	var questions []models.Question
	for _, difficulty := range []string{models.DifficultyEasy, models.DifficultyMedium, models.DifficultyHard} {
		for i := 0; i < perDifficulty; i++ {
			questions = append(questions, makeQuestion(
				fmt.Sprintf("%s %s question %d", slug, difficulty, i),
				fmt.Sprintf("%s %s answer %d", slug, difficulty, i),
				difficulty,
			))
		}
	}
	return questions
}

func makeCatalog(perDifficulty int, slugs ...string) *Catalog {
	catalog := &Catalog{
		Questions: make(map[string][]models.Question),
	}
	for _, slug := range slugs {
		catalog.Categories = append(catalog.Categories, models.Category{
			Slug: slug,
			Name: slug,
		})
		catalog.Questions[slug] = makePool(slug, perDifficulty)
	}
	return catalog
}
