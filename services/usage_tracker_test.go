package services

import (
	"context"
	"encoding/json"
	"testing"

	"trivianight/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func gameWithAssignment(slots ...models.AssignedQuestion) models.Game {
	assignment := make(map[string]models.AssignedQuestion, len(slots))
	for _, slot := range slots {
		assignment[SlotKey(slot.CategorySlug, slot.Points, slot.SlotIndex)] = slot
	}
	data, _ := json.Marshal(assignment)
	return models.Game{
		Assignment:    datatypes.JSON(data),
		UsedQuestions: datatypes.JSON([]byte("[]")),
	}
}

func assignedSlot(categorySlug string, q *models.Question, points, slotIndex int) models.AssignedQuestion {
	return models.AssignedQuestion{
		QuestionID:   q.PublicID,
		TrackingKey:  ResolveKey(categorySlug, q),
		CategorySlug: categorySlug,
		Points:       points,
		SlotIndex:    slotIndex,
		Text:         q.Text,
		Answer:       q.Answer,
		Difficulty:   q.Difficulty,
	}
}

func TestAccumulateUsageCountsQuestionOncePerGame(t *testing.T) {
	q := makeQuestion("text", "answer", models.DifficultyEasy)
	key := ResolveKey("history", &q)

	// The question appears in both the assignment and the used ledger of
	// the same game.
	game := gameWithAssignment(assignedSlot("history", &q, 200, 0))
	used := []models.UsedQuestion{{
		SlotKey:      SlotKey("history", 200, 0),
		QuestionID:   q.PublicID,
		TrackingKey:  key,
		CategorySlug: "history",
	}}
	usedJSON, _ := json.Marshal(used)
	game.UsedQuestions = datatypes.JSON(usedJSON)

	counts := accumulateUsage([]models.Game{game})
	assert.Equal(t, map[string]int{key: 1}, counts)
}

func TestAccumulateUsageAddsAcrossGames(t *testing.T) {
	q := makeQuestion("text", "answer", models.DifficultyEasy)
	key := ResolveKey("history", &q)

	games := []models.Game{
		gameWithAssignment(assignedSlot("history", &q, 200, 0)),
		gameWithAssignment(assignedSlot("history", &q, 200, 0)),
	}

	counts := accumulateUsage(games)
	assert.Equal(t, map[string]int{key: 2}, counts)
}

func TestAccumulateUsageRederivesMissingKeys(t *testing.T) {
	q := makeQuestion("text", "answer", models.DifficultyEasy)

	// An old record without stored tracking keys still replays correctly.
	slot := assignedSlot("history", &q, 200, 0)
	slot.TrackingKey = ""
	game := gameWithAssignment(slot)

	counts := accumulateUsage([]models.Game{game})
	assert.Equal(t, 1, counts[ResolveKey("history", &q)])
}

func TestSyncFromHistoryMergeRunsOncePerSession(t *testing.T) {
	_, store, cache := newTestStack(t)
	tracker := NewUsageTracker(store, cache, nil)
	ctx := context.Background()

	q := makeQuestion("text", "answer", models.DifficultyEasy)
	key := ResolveKey("history", &q)
	games := []models.Game{gameWithAssignment(assignedSlot("history", &q, 200, 0))}

	require.NoError(t, tracker.SyncFromHistory(ctx, 1, games, false))
	require.NoError(t, tracker.SyncFromHistory(ctx, 1, games, false))

	counts, err := store.GetAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{key: 1}, counts)
}

func TestSyncFromHistoryMergeIsIdempotentAtStoreLevel(t *testing.T) {
	_, store, cache := newTestStack(t)
	ctx := context.Background()

	q := makeQuestion("text", "answer", models.DifficultyEasy)
	key := ResolveKey("history", &q)
	games := []models.Game{gameWithAssignment(assignedSlot("history", &q, 200, 0))}

	// Two trackers model two devices, each running its own login sync.
	first := NewUsageTracker(store, cache, nil)
	second := NewUsageTracker(store, cache, nil)
	require.NoError(t, first.SyncFromHistory(ctx, 1, games, false))
	require.NoError(t, second.SyncFromHistory(ctx, 1, games, false))

	counts, err := store.GetAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{key: 1}, counts)
}

func TestSyncFromHistoryReplaceAfterDeletion(t *testing.T) {
	_, store, cache := newTestStack(t)
	tracker := NewUsageTracker(store, cache, nil)
	ctx := context.Background()

	q := makeQuestion("text", "answer", models.DifficultyEasy)
	key := ResolveKey("history", &q)

	// G1 and G2 both reference the same question.
	g1 := gameWithAssignment(assignedSlot("history", &q, 200, 0))
	g2 := gameWithAssignment(assignedSlot("history", &q, 200, 1))

	require.NoError(t, tracker.SyncFromHistory(ctx, 1, []models.Game{g1, g2}, false))
	counts, err := store.GetAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[key])

	// G1 deleted: replaying the survivors yields exactly 1, not 0 and
	// not 2.
	require.NoError(t, tracker.SyncFromHistory(ctx, 1, []models.Game{g2}, true))
	counts, err = store.GetAll(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[key])

	// And the cache already reflects the rebuilt record.
	cached, err := cache.GetUsageData(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, cached[key])
}

func TestSyncFromHistoryPreLogin(t *testing.T) {
	_, store, cache := newTestStack(t)
	tracker := NewUsageTracker(store, cache, nil)

	q := makeQuestion("text", "answer", models.DifficultyEasy)
	games := []models.Game{gameWithAssignment(assignedSlot("history", &q, 200, 0))}

	require.NoError(t, tracker.SyncFromHistory(context.Background(), 0, games, false))

	counts, err := store.GetAll(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestAvailableCountAndHealthReport(t *testing.T) {
	_, store, cache := newTestStack(t)
	tracker := NewUsageTracker(store, cache, nil)
	ctx := context.Background()

	catalog := makeCatalog(2, "history", "sports")
	questions := catalog.Questions["history"]

	available, err := tracker.AvailableCount(ctx, 1, "history", questions)
	require.NoError(t, err)
	assert.Equal(t, 6, available)

	// Use up one history question.
	require.NoError(t, store.Increment(ctx, 1, ResolveKey("history", &questions[0])))
	cache.Invalidate(ctx, 1)

	available, err = tracker.AvailableCount(ctx, 1, "history", questions)
	require.NoError(t, err)
	assert.Equal(t, 5, available)

	report, err := tracker.CategoryHealthReport(ctx, 1, catalog)
	require.NoError(t, err)
	require.Len(t, report, 2)
	for _, health := range report {
		switch health.Slug {
		case "history":
			assert.Equal(t, 5, health.Available)
			assert.True(t, health.Exhausted)
		case "sports":
			assert.Equal(t, 6, health.Available)
			assert.False(t, health.Exhausted)
		}
	}
}

func TestResetCategoryOnlyTouchesItsKeys(t *testing.T) {
	_, store, cache := newTestStack(t)
	tracker := NewUsageTracker(store, cache, nil)
	ctx := context.Background()

	catalog := makeCatalog(2, "history", "sports")
	history := catalog.Questions["history"]
	sports := catalog.Questions["sports"]

	for i := range history {
		require.NoError(t, store.Increment(ctx, 1, ResolveKey("history", &history[i])))
	}
	require.NoError(t, store.Increment(ctx, 1, ResolveKey("sports", &sports[0])))
	cache.Invalidate(ctx, 1)

	require.NoError(t, tracker.ResetCategory(ctx, 1, "history", history))

	available, err := tracker.AvailableCount(ctx, 1, "history", history)
	require.NoError(t, err)
	assert.Equal(t, 6, available)

	sportsAvailable, err := tracker.AvailableCount(ctx, 1, "sports", sports)
	require.NoError(t, err)
	assert.Equal(t, 5, sportsAvailable)
}

func TestRecordUseIncrementsAndInvalidates(t *testing.T) {
	_, store, cache := newTestStack(t)
	tracker := NewUsageTracker(store, cache, nil)
	ctx := context.Background()

	q := makeQuestion("text", "answer", models.DifficultyEasy)

	// Warm the cache first so the test proves invalidation.
	_, err := cache.GetUsageData(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, tracker.RecordUse(ctx, 1, "history", &q))

	counts, err := tracker.GetUsageData(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[ResolveKey("history", &q)])

	_, err = store.GetAll(ctx, 1)
	require.NoError(t, err)
}
