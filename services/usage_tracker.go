package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"trivianight/models"
)

// One full game takes 6 questions per category: 3 difficulty tiers x 2 slots.
const questionsPerCategory = 6

// UsageTracker owns a user's seen/unseen question state. It funnels every
// read through the cache, rebuilds counters from game history, and reports
// per-category health. Constructed once at startup; all calls carry the
// user explicitly, so an account switch cannot leak state between users.
type UsageTracker struct {
	store *UsageStore
	cache *UsageCache
	hub   *Hub

	syncMu sync.Mutex
	synced map[uint]bool
}

func NewUsageTracker(store *UsageStore, cache *UsageCache, hub *Hub) *UsageTracker {
	return &UsageTracker{
		store:  store,
		cache:  cache,
		hub:    hub,
		synced: make(map[uint]bool),
	}
}

func (t *UsageTracker) GetUsageData(ctx context.Context, userID uint) (map[string]int, error) {
	return t.cache.GetUsageData(ctx, userID)
}

func (t *UsageTracker) InvalidateCache(ctx context.Context, userID uint) {
	t.cache.Invalidate(ctx, userID)
}

// SyncFromHistory re-derives usage counters by replaying game records.
//
// replaceMode=false is the login-time sync: merge the replayed counts into
// the store, at most once per user per process. replaceMode=true is the
// post-deletion rebuild: the caller passes the surviving games only and
// the store record is overwritten wholesale, so a deleted game's questions
// become available again.
func (t *UsageTracker) SyncFromHistory(ctx context.Context, userID uint, games []models.Game, replaceMode bool) error {
	if userID == 0 {
		return nil
	}

	if !replaceMode {
		t.syncMu.Lock()
		if t.synced[userID] {
			t.syncMu.Unlock()
			log.Printf("Usage history already synced for user %d this session, skipping", userID)
			return nil
		}
		t.synced[userID] = true
		t.syncMu.Unlock()
	}

	counts := accumulateUsage(games)

	mode := UsageMerge
	if replaceMode {
		mode = UsageReplace
	}

	if err := t.store.SetAll(ctx, userID, counts, mode); err != nil {
		if !replaceMode {
			// Let a retry run the sync again.
			t.syncMu.Lock()
			delete(t.synced, userID)
			t.syncMu.Unlock()
		}
		return fmt.Errorf("failed to sync usage from history for user %d: %w", userID, err)
	}

	t.cache.Invalidate(ctx, userID)
	if replaceMode {
		// The replayed counts are the whole record now, so the cache can
		// be seeded directly instead of waiting for the next read.
		t.cache.Prime(ctx, userID, counts)
	}
	t.notifyUsageChanged(userID, "history_sync")

	log.Printf("Synced usage from %d games for user %d (replace=%t, %d keys)", len(games), userID, replaceMode, len(counts))
	return nil
}

// accumulateUsage replays game records into a usage record. Per game, a
// question counts once whether it appears in the assignment, the used
// ledger, or both; across games the counts add up.
func accumulateUsage(games []models.Game) map[string]int {
	counts := make(map[string]int)
	for i := range games {
		game := &games[i]
		keys := make(map[string]bool)

		assignment, err := game.AssignmentMap()
		if err != nil {
			log.Printf("Skipping unreadable assignment on game %d: %v", game.ID, err)
		} else {
			for _, slot := range assignment {
				keys[assignedQuestionKey(slot)] = true
			}
		}

		used, err := game.UsedQuestionList()
		if err != nil {
			log.Printf("Skipping unreadable used-question ledger on game %d: %v", game.ID, err)
		} else {
			for _, entry := range used {
				keys[usedQuestionKey(entry)] = true
			}
		}

		for key := range keys {
			counts[key]++
		}
	}
	return counts
}

// RecordUse marks one question used outside the reservation flow, e.g. a
// fallback question pulled onto the board after a shortage.
func (t *UsageTracker) RecordUse(ctx context.Context, userID uint, categorySlug string, q *models.Question) error {
	if userID == 0 {
		return nil
	}
	key := ResolveKey(categorySlug, q)
	if err := t.store.Increment(ctx, userID, key); err != nil {
		return err
	}
	t.cache.Invalidate(ctx, userID)
	t.notifyUsageChanged(userID, "question_used")
	return nil
}

type CategoryHealth struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Total     int    `json:"total"`
	Available int    `json:"available"`
	Exhausted bool   `json:"exhausted"`
}

// AvailableCount reports how many of the category's questions the user has
// not used yet.
func (t *UsageTracker) AvailableCount(ctx context.Context, userID uint, categorySlug string, questions []models.Question) (int, error) {
	usage, err := t.cache.GetUsageData(ctx, userID)
	if err != nil {
		return 0, err
	}
	return availableIn(usage, categorySlug, questions), nil
}

// CategoryHealthReport evaluates every catalog category against a single
// usage read. A category is exhausted when it can no longer fill one full
// game's slots.
func (t *UsageTracker) CategoryHealthReport(ctx context.Context, userID uint, catalog *Catalog) ([]CategoryHealth, error) {
	usage, err := t.cache.GetUsageData(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := make([]CategoryHealth, 0, len(catalog.Categories))
	for i := range catalog.Categories {
		category := &catalog.Categories[i]
		questions := catalog.Questions[category.Slug]
		available := availableIn(usage, category.Slug, questions)
		report = append(report, CategoryHealth{
			Slug:      category.Slug,
			Name:      category.Name,
			Total:     len(questions),
			Available: available,
			Exhausted: available < questionsPerCategory,
		})
	}
	return report, nil
}

func availableIn(usage map[string]int, categorySlug string, questions []models.Question) int {
	available := 0
	for i := range questions {
		if usage[ResolveKey(categorySlug, &questions[i])] == 0 {
			available++
		}
	}
	return available
}

// ResetCategory zeroes out the usage entries for exactly this category's
// tracking keys, then drops the cache.
func (t *UsageTracker) ResetCategory(ctx context.Context, userID uint, categorySlug string, questions []models.Question) error {
	if userID == 0 {
		return nil
	}

	keys := make([]string, 0, len(questions))
	for i := range questions {
		keys = append(keys, ResolveKey(categorySlug, &questions[i]))
	}

	if err := t.store.DeleteKeys(ctx, userID, keys); err != nil {
		return fmt.Errorf("failed to reset category %s for user %d: %w", categorySlug, userID, err)
	}

	t.cache.Invalidate(ctx, userID)
	t.notifyUsageChanged(userID, "category_reset")

	log.Printf("Reset %d usage keys in category %s for user %d", len(keys), categorySlug, userID)
	return nil
}

func (t *UsageTracker) notifyUsageChanged(userID uint, reason string) {
	if t.hub == nil {
		return
	}
	t.hub.BroadcastToUser(userID, "usage_invalidated", map[string]interface{}{
		"reason": reason,
	})
}
