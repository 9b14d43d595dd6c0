package services

import (
	"regexp"

	"trivianight/models"
)

const (
	// A catalog PublicID shorter than this is treated as absent and the
	// key falls back to question content.
	minDurableIDLength = 8

	maxKeyTextRunes   = 100
	maxKeyAnswerRunes = 50
)

// Everything outside ASCII alphanumerics and the Arabic block becomes "_".
var trackingKeyStrip = regexp.MustCompile(`[^A-Za-z0-9\x{0600}-\x{06FF}]`)

// ResolveKey derives the stable tracking key for a question within a
// category. The same logical question must always resolve to the same key,
// no matter which fetch produced the record, so every component that reads
// or writes usage goes through this one function.
//
// Preferred path: category slug + durable catalog ID. Fallback when the
// catalog ID is missing or too short: category slug + question text and
// answer prefixes. The fallback keeps keys human-readable at the cost of a
// known prefix-collision risk.
func ResolveKey(categorySlug string, q *models.Question) string {
	if q == nil {
		return sanitizeKey(categorySlug + "-")
	}
	if len(q.PublicID) >= minDurableIDLength {
		return sanitizeKey(categorySlug + "-" + q.PublicID)
	}
	return sanitizeKey(categorySlug + "-" + truncateRunes(q.Text, maxKeyTextRunes) + "-" + truncateRunes(q.Answer, maxKeyAnswerRunes))
}

func sanitizeKey(s string) string {
	return trackingKeyStrip.ReplaceAllString(s, "_")
}

// truncateRunes cuts after n runes, not bytes, so Arabic text keeps whole
// characters.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// usedQuestionKey returns the ledger entry's tracking key, re-deriving it
// through ResolveKey when an old record predates stored keys.
func usedQuestionKey(u models.UsedQuestion) string {
	if u.TrackingKey != "" {
		return u.TrackingKey
	}
	return ResolveKey(u.CategorySlug, &models.Question{
		PublicID: u.QuestionID,
		Text:     u.Text,
		Answer:   u.Answer,
	})
}

// assignedQuestionKey mirrors usedQuestionKey for assignment slots.
func assignedQuestionKey(a models.AssignedQuestion) string {
	if a.TrackingKey != "" {
		return a.TrackingKey
	}
	return ResolveKey(a.CategorySlug, &models.Question{
		PublicID: a.QuestionID,
		Text:     a.Text,
		Answer:   a.Answer,
	})
}
