package keymaterial

import (
	"context"

	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
)

type Repository interface {
	Get(ctx context.Context, userID string) (*models.KeyMaterial, error)
	Create(ctx context.Context, m *models.KeyMaterial) error
	Replace(ctx context.Context, m *models.KeyMaterial) error
}
