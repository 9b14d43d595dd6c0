package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

type Question struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	PublicID   string         `json:"public_id" gorm:"uniqueIndex;not null"`
	CategoryID uint           `json:"category_id" gorm:"not null;index"`
	Text       string         `json:"text" gorm:"not null"`
	Answer     string         `json:"answer" gorm:"not null"`
	Difficulty string         `json:"difficulty" gorm:"not null"` // easy, medium, hard
	ImageURL   string         `json:"image_url"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	Category Category `json:"category,omitempty"`
}
