package services

import (
	"context"
	"fmt"
	"log"
	"math/rand"

	"trivianight/models"
)

const slotsPerTier = 2

// Board point values per difficulty tier.
var boardTiers = []struct {
	Difficulty string
	Points     int
}{
	{models.DifficultyEasy, 200},
	{models.DifficultyMedium, 400},
	{models.DifficultyHard, 600},
}

// Shortage records a board slot that had no eligible unused question left.
// Non-fatal: the game starts with the slot empty and the health reporter
// surfaces the category as needing a reset.
type Shortage struct {
	CategorySlug string `json:"category_slug"`
	Difficulty   string `json:"difficulty"`
	Points       int    `json:"points"`
	SlotIndex    int    `json:"slot_index"`
}

type AssignmentResult struct {
	Assignment map[string]models.AssignedQuestion `json:"assignment"`
	Shortages  []Shortage                         `json:"shortages,omitempty"`
}

// AssignmentEngine reserves concrete questions to board slots at game
// creation. By default the reservation write to the store happens in the
// background so a slow store cannot block game start; syncCommit makes it
// synchronous behind the same interface.
type AssignmentEngine struct {
	store      *UsageStore
	cache      *UsageCache
	hub        *Hub
	syncCommit bool
}

func NewAssignmentEngine(store *UsageStore, cache *UsageCache, hub *Hub, syncCommit bool) *AssignmentEngine {
	return &AssignmentEngine{
		store:      store,
		cache:      cache,
		hub:        hub,
		syncCommit: syncCommit,
	}
}

func SlotKey(categorySlug string, points, slotIndex int) string {
	return fmt.Sprintf("%s-%d-%d", categorySlug, points, slotIndex)
}

// Assign fills every board slot for the selected categories from the
// user's unused pool: per category and tier, filter to the difficulty,
// drop questions with a positive usage count, drop questions already
// placed in this assignment, and pick uniformly at random.
func (e *AssignmentEngine) Assign(ctx context.Context, userID uint, selectedSlugs []string, catalog *Catalog) (*AssignmentResult, error) {
	usage, err := e.cache.GetUsageData(ctx, userID)
	if err != nil {
		// Degraded path: a stale or empty view can only make a question
		// look available, never used, so assignment proceeds.
		log.Printf("Usage read failed for user %d, assigning with empty usage view: %v", userID, err)
		usage = map[string]int{}
	}

	result := &AssignmentResult{
		Assignment: make(map[string]models.AssignedQuestion),
	}
	placedIDs := make(map[string]bool)
	reserved := make(map[string]int)

	for _, slug := range selectedSlugs {
		questions := catalog.Questions[slug]
		categoryName := catalog.CategoryName(slug)
		if len(questions) == 0 {
			log.Printf("Category %s has no catalog questions, all its slots will be short", slug)
		}

		for _, tier := range boardTiers {
			for slot := 0; slot < slotsPerTier; slot++ {
				candidates := eligibleQuestions(questions, slug, tier.Difficulty, usage, placedIDs, reserved)
				if len(candidates) == 0 {
					result.Shortages = append(result.Shortages, Shortage{
						CategorySlug: slug,
						Difficulty:   tier.Difficulty,
						Points:       tier.Points,
						SlotIndex:    slot,
					})
					log.Printf("No unused %s question left in category %s for user %d (slot %d)", tier.Difficulty, slug, userID, slot)
					continue
				}

				q := candidates[rand.Intn(len(candidates))]
				key := ResolveKey(slug, q)

				result.Assignment[SlotKey(slug, tier.Points, slot)] = models.AssignedQuestion{
					QuestionID:   q.PublicID,
					TrackingKey:  key,
					CategorySlug: slug,
					CategoryName: categoryName,
					Points:       tier.Points,
					SlotIndex:    slot,
					Text:         q.Text,
					Answer:       q.Answer,
					Difficulty:   q.Difficulty,
				}
				placedIDs[q.PublicID] = true
				reserved[key] = 1
			}
		}
	}

	if len(reserved) > 0 && userID != 0 {
		if e.syncCommit {
			if err := e.commitReservations(ctx, userID, reserved); err != nil {
				return nil, err
			}
		} else {
			go func() {
				if err := e.commitReservations(context.Background(), userID, reserved); err != nil {
					log.Printf("Failed to commit %d question reservations for user %d: %v", len(reserved), userID, err)
				}
			}()
		}
	}

	log.Printf("Assigned %d slots for user %d across %d categories (%d shortages)",
		len(result.Assignment), userID, len(selectedSlugs), len(result.Shortages))
	return result, nil
}

func (e *AssignmentEngine) commitReservations(ctx context.Context, userID uint, reserved map[string]int) error {
	if err := e.store.SetAll(ctx, userID, reserved, UsageMerge); err != nil {
		return err
	}
	e.cache.Invalidate(ctx, userID)
	if e.hub != nil {
		e.hub.BroadcastToUser(userID, "usage_invalidated", map[string]interface{}{
			"reason": "questions_reserved",
		})
	}
	return nil
}

func eligibleQuestions(questions []models.Question, categorySlug, difficulty string, usage map[string]int, placedIDs map[string]bool, reserved map[string]int) []*models.Question {
	var candidates []*models.Question
	for i := range questions {
		q := &questions[i]
		if q.Difficulty != difficulty {
			continue
		}
		if q.PublicID != "" && placedIDs[q.PublicID] {
			continue
		}
		key := ResolveKey(categorySlug, q)
		if usage[key] > 0 || reserved[key] > 0 {
			continue
		}
		candidates = append(candidates, q)
	}
	return candidates
}
