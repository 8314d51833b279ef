package recovery

import (
	"context"
	"time"

	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
)

type Repository interface {
	Save(ctx context.Context, c *models.RecoveryCredential) error
	Get(ctx context.Context, userID string) (*models.RecoveryCredential, error)
	MarkUsed(ctx context.Context, userID string, at time.Time) error
}
