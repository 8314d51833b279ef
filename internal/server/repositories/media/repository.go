package media

import (
	"context"

	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, m *models.Media) error
	Get(ctx context.Context, userID, id string) (*models.Media, error)
	ListByEntry(ctx context.Context, userID, entryID string) ([]*models.Media, error)
	ListIDs(ctx context.Context, userID string) ([]string, error)
	Delete(ctx context.Context, userID, id string) error
	Reseal(ctx context.Context, userID, id, oldHash, newHash string) error
}
