package services

import (
	"strings"
	"testing"

	"trivianight/models"

	"github.com/stretchr/testify/assert"
)

func TestResolveKeyDeterministic(t *testing.T) {
	q := makeQuestion("What is the capital of France?", "Paris", models.DifficultyEasy)

	first := ResolveKey("geography", &q)
	second := ResolveKey("geography", &q)
	assert.Equal(t, first, second)

	// A structurally equal copy resolves identically, no matter which
	// fetch produced the record.
	copied := models.Question{
		PublicID:   q.PublicID,
		Text:       q.Text,
		Answer:     q.Answer,
		Difficulty: q.Difficulty,
	}
	assert.Equal(t, first, ResolveKey("geography", &copied))
}

func TestResolveKeyPrefersDurableID(t *testing.T) {
	q := makeQuestion("What is the capital of France?", "Paris", models.DifficultyEasy)

	key := ResolveKey("geography", &q)
	assert.Contains(t, key, sanitizeKey(q.PublicID))

	// With a durable ID the content does not participate in the key.
	reworded := q
	reworded.Text = "Name the capital city of France."
	assert.Equal(t, key, ResolveKey("geography", &reworded))
}

func TestResolveKeyContentFallback(t *testing.T) {
	q := models.Question{
		Text:   "What is the capital of France?",
		Answer: "Paris",
	}

	key := ResolveKey("geography", &q)
	assert.True(t, strings.HasPrefix(key, "geography_"))
	assert.Contains(t, key, "Paris")

	// A too-short catalog ID is treated as absent.
	q.PublicID = "q1"
	assert.Equal(t, key, ResolveKey("geography", &q))

	// Without a durable ID the content does participate.
	reworded := q
	reworded.Text = "Name the capital city of France."
	assert.NotEqual(t, key, ResolveKey("geography", &reworded))
}

func TestResolveKeyFallbackTruncatesByRunes(t *testing.T) {
	long := strings.Repeat("ن", 150)
	q := models.Question{Text: long, Answer: strings.Repeat("م", 80)}

	key := ResolveKey("history", &q)
	assert.Equal(t, 100, strings.Count(key, "ن"))
	assert.Equal(t, 50, strings.Count(key, "م"))
}

func TestSanitizeKeepsArabicBlock(t *testing.T) {
	q := models.Question{
		Text:   "ما هي عاصمة مصر؟",
		Answer: "القاهرة",
	}

	key := ResolveKey("history", &q)
	assert.Contains(t, key, "القاهرة")
	assert.Contains(t, key, "عاصمة")
	assert.NotContains(t, key, " ")
	assert.NotContains(t, key, "-")
}

func TestSanitizeStripsPunctuation(t *testing.T) {
	assert.Equal(t, "What_s_up_", sanitizeKey("What's up?"))
	assert.Equal(t, "abc123", sanitizeKey("abc123"))
}

func TestResolveKeyMalformedInput(t *testing.T) {
	assert.NotPanics(t, func() {
		ResolveKey("", nil)
		ResolveKey("history", &models.Question{})
	})
	assert.Equal(t, "history_", ResolveKey("history", nil))
}
