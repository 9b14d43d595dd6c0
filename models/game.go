package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Game struct {
	ID                 uint           `json:"id" gorm:"primaryKey"`
	UserID             uint           `json:"user_id" gorm:"not null;index"`
	Pin                string         `json:"pin" gorm:"uniqueIndex;not null"`
	Status             string         `json:"status" gorm:"not null;default:'active'"` // active, finished
	SelectedCategories datatypes.JSON `json:"selected_categories"`                     // []string of category slugs
	Assignment         datatypes.JSON `json:"assignment"`                              // map[slotKey]AssignedQuestion, fixed at creation
	UsedQuestions      datatypes.JSON `json:"used_questions"`                          // []UsedQuestion, appended during play
	CurrentTurn        int            `json:"current_turn" gorm:"not null;default:0"`
	StartedAt          *time.Time     `json:"started_at"`
	EndedAt            *time.Time     `json:"ended_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `json:"-" gorm:"index"`

	// Relationships
	User  User   `json:"user,omitempty"`
	Teams []Team `json:"teams,omitempty" gorm:"foreignKey:GameID"`
}

// AssignedQuestion is one reserved board slot, serialized into
// Game.Assignment. It carries enough of the question to replay a saved
// game without refetching the catalog.
type AssignedQuestion struct {
	QuestionID   string `json:"question_id"`
	TrackingKey  string `json:"tracking_key"`
	CategorySlug string `json:"category_slug"`
	CategoryName string `json:"category_name"`
	Points       int    `json:"points"`
	SlotIndex    int    `json:"slot_index"`
	Text         string `json:"text"`
	Answer       string `json:"answer"`
	Difficulty   string `json:"difficulty"`
}

// UsedQuestion is one entry of the game's used-question ledger,
// serialized into Game.UsedQuestions.
type UsedQuestion struct {
	SlotKey      string    `json:"slot_key,omitempty"`
	QuestionID   string    `json:"question_id"`
	TrackingKey  string    `json:"tracking_key"`
	CategorySlug string    `json:"category_slug"`
	Text         string    `json:"text"`
	Answer       string    `json:"answer"`
	TeamID       uint      `json:"team_id"`
	Correct      bool      `json:"correct"`
	ScoreDelta   int       `json:"score_delta"`
	UsedAt       time.Time `json:"used_at"`
}

func (g *Game) AssignmentMap() (map[string]AssignedQuestion, error) {
	assignment := map[string]AssignedQuestion{}
	if len(g.Assignment) == 0 {
		return assignment, nil
	}
	if err := json.Unmarshal(g.Assignment, &assignment); err != nil {
		return nil, err
	}
	return assignment, nil
}

func (g *Game) UsedQuestionList() ([]UsedQuestion, error) {
	used := []UsedQuestion{}
	if len(g.UsedQuestions) == 0 {
		return used, nil
	}
	if err := json.Unmarshal(g.UsedQuestions, &used); err != nil {
		return nil, err
	}
	return used, nil
}

func (g *Game) CategorySlugs() ([]string, error) {
	slugs := []string{}
	if len(g.SelectedCategories) == 0 {
		return slugs, nil
	}
	if err := json.Unmarshal(g.SelectedCategories, &slugs); err != nil {
		return nil, err
	}
	return slugs, nil
}
