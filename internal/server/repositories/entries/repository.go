package entries

import (
	"context"
	"time"

	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, e *models.Entry) error
	Get(ctx context.Context, userID, id string) (*models.Entry, error)
	Update(ctx context.Context, e *models.Entry, prevHash string) error
	Delete(ctx context.Context, userID, id string) (contentHash string, err error)
	List(ctx context.Context, userID string, f models.EntryFilter) ([]*models.Entry, error)
	ListIDs(ctx context.Context, userID string) ([]string, error)
	Reseal(ctx context.Context, userID, id, oldHash, newHash string, title []byte) error
	AdjustMediaCount(ctx context.Context, userID, id string, delta int) error
	Calendar(ctx context.Context, userID string, from, to time.Time) ([]models.CalendarDay, error)
	MoodStats(ctx context.Context, userID string) (*models.MoodStats, error)
}
