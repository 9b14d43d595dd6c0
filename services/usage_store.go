package services

import (
	"context"
	"fmt"

	"trivianight/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Write modes for UsageStore.SetAll.
const (
	UsageMerge   = "merge"
	UsageReplace = "replace"
)

// UsageStore is the system of record for per-user usage counts. Errors
// propagate to the caller: a swallowed failure here shows up later as a
// repeated question, not a crash.
type UsageStore struct {
	db *gorm.DB
}

func NewUsageStore(db *gorm.DB) *UsageStore {
	return &UsageStore{db: db}
}

// GetAll returns the user's full usage record as map[trackingKey]count.
// Zero-count rows are treated as absent.
func (s *UsageStore) GetAll(ctx context.Context, userID uint) (map[string]int, error) {
	var entries []models.UsageEntry
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to read usage record for user %d: %w", userID, err)
	}

	counts := make(map[string]int, len(entries))
	for _, entry := range entries {
		if entry.Count > 0 {
			counts[entry.TrackingKey] = entry.Count
		}
	}
	return counts, nil
}

// Increment adds one use to a single tracking key. The additive upsert
// keeps concurrent writers from losing each other's updates.
func (s *UsageStore) Increment(ctx context.Context, userID uint, trackingKey string) error {
	entry := models.UsageEntry{
		UserID:      userID,
		TrackingKey: trackingKey,
		Count:       1,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "tracking_key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1")}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to increment usage %s for user %d: %w", trackingKey, userID, err)
	}
	return nil
}

// SetAll writes a computed usage record. Replace mode wholesale-overwrites
// the user's record (post-deletion reconciliation). Merge mode only adds:
// per key the stored count becomes max(existing, incoming), which makes a
// repeated merge of the same history a no-op.
func (s *UsageStore) SetAll(ctx context.Context, userID uint, counts map[string]int, mode string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch mode {
		case UsageReplace:
			if err := tx.Where("user_id = ?", userID).Delete(&models.UsageEntry{}).Error; err != nil {
				return err
			}
			entries := make([]models.UsageEntry, 0, len(counts))
			for key, count := range counts {
				if count <= 0 {
					continue
				}
				entries = append(entries, models.UsageEntry{
					UserID:      userID,
					TrackingKey: key,
					Count:       count,
				})
			}
			if len(entries) == 0 {
				return nil
			}
			return tx.Create(&entries).Error

		case UsageMerge:
			var existing []models.UsageEntry
			if err := tx.Where("user_id = ?", userID).Find(&existing).Error; err != nil {
				return err
			}
			current := make(map[string]int, len(existing))
			for _, entry := range existing {
				current[entry.TrackingKey] = entry.Count
			}

			for key, count := range counts {
				if count <= 0 {
					continue
				}
				have, ok := current[key]
				if !ok {
					if err := tx.Create(&models.UsageEntry{
						UserID:      userID,
						TrackingKey: key,
						Count:       count,
					}).Error; err != nil {
						return err
					}
					continue
				}
				if count > have {
					if err := tx.Model(&models.UsageEntry{}).
						Where("user_id = ? AND tracking_key = ?", userID, key).
						Update("count", count).Error; err != nil {
						return err
					}
				}
			}
			return nil

		default:
			return fmt.Errorf("unknown usage write mode %q", mode)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to write usage record for user %d: %w", userID, err)
	}
	return nil
}

// DeleteKeys removes exactly the given tracking keys from the user's
// record. Serves category reset.
func (s *UsageStore) DeleteKeys(ctx context.Context, userID uint, trackingKeys []string) error {
	if len(trackingKeys) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND tracking_key IN ?", userID, trackingKeys).
		Delete(&models.UsageEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %d usage keys for user %d: %w", len(trackingKeys), userID, err)
	}
	return nil
}

// ClearAll removes the user's entire usage record.
func (s *UsageStore) ClearAll(ctx context.Context, userID uint) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.UsageEntry{}).Error; err != nil {
		return fmt.Errorf("failed to clear usage record for user %d: %w", userID, err)
	}
	return nil
}
