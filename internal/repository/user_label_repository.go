package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/inboxagent/sync-worker/internal/models"
)

type UserLabelRepository struct {
	db *gorm.DB
}

func NewUserLabelRepository(db *gorm.DB) *UserLabelRepository {
	return &UserLabelRepository{db: db}
}

// GetLabelID resolves a control label key to the provider label id for
// one user. Returns "" when the user has no mapping for the key.
func (r *UserLabelRepository) GetLabelID(ctx context.Context, userID, labelKey string) (string, error) {
	var label models.UserLabel
	result := r.db.WithContext(ctx).First(&label, "user_id = ? AND label_key = ?", userID, labelKey)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to get user label: %w", result.Error)
	}
	return label.ProviderLabelID, nil
}

// ListByUser returns all control label mappings for a user.
func (r *UserLabelRepository) ListByUser(ctx context.Context, userID string) ([]models.UserLabel, error) {
	var labels []models.UserLabel
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&labels)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list user labels: %w", result.Error)
	}
	return labels, nil
}
