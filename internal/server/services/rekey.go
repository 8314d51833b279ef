package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/cryptox"
	"github.com/dmitrijs2005/diarykeeper/internal/dbx"
	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
	"github.com/dmitrijs2005/diarykeeper/internal/server/session"
)

// resealed is one row whose envelope has been written again under the new
// key. Only ids and hashes are kept; envelopes are never held past the item
// they belong to.
type resealed struct {
	id      string
	media   bool
	oldHash string
	newHash string
	title   []byte // entries only
}

func (it resealed) storeKey(hash string) string {
	if it.media {
		return models.MediaStoreKey(it.id, hash)
	}
	return models.EntryStoreKey(it.id, hash)
}

// reencryptFor returns the session.ReencryptFunc for userID. Envelopes are
// rewritten one at a time under fresh store keys, then every row and the new
// key material are switched in one transaction. Until that commit the old
// envelopes stay authoritative, so any failure only has to discard what was
// written.
func (s *DiaryService) reencryptFor(userID string) session.ReencryptFunc {
	return func(ctx context.Context, oldKey, newKey []byte, next *models.KeyMaterial) error {
		done, err := s.resealAll(ctx, userID, oldKey, newKey)
		if err == nil {
			err = s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
				entries, media := s.repomanager.Entries(tx), s.repomanager.Media(tx)
				for _, it := range done {
					var err error
					if it.media {
						err = media.Reseal(ctx, userID, it.id, it.oldHash, it.newHash)
					} else {
						err = entries.Reseal(ctx, userID, it.id, it.oldHash, it.newHash, it.title)
					}
					if err != nil {
						return fmt.Errorf("switch %s: %w", it.storeKey(it.oldHash), err)
					}
				}
				return s.repomanager.KeyMaterial(tx).Replace(ctx, next)
			})
		}
		if err != nil {
			for _, it := range done {
				s.discard(ctx, it.storeKey(it.newHash))
			}
			return err
		}

		for _, it := range done {
			s.discard(ctx, it.storeKey(it.oldHash))
		}
		s.log.Info(ctx, "diary re-encrypted", "user_id", userID, "envelopes", len(done))
		return nil
	}
}

// resealAll writes every envelope of userID again under newKey. On error it
// still returns the items already written so the caller can discard them.
func (s *DiaryService) resealAll(ctx context.Context, userID string, oldKey, newKey []byte) ([]resealed, error) {
	entryIDs, err := s.repomanager.Entries(s.db).ListIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	mediaIDs, err := s.repomanager.Media(s.db).ListIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	done := make([]resealed, 0, len(entryIDs)+len(mediaIDs))
	for _, id := range entryIDs {
		it, err := s.resealEntry(ctx, userID, id, oldKey, newKey)
		if err != nil {
			return done, fmt.Errorf("entry %s: %w", id, err)
		}
		done = append(done, *it)
	}
	for _, id := range mediaIDs {
		it, err := s.resealMedia(ctx, userID, id, oldKey, newKey)
		if err != nil {
			return done, fmt.Errorf("media %s: %w", id, err)
		}
		done = append(done, *it)
	}
	return done, nil
}

func (s *DiaryService) resealEntry(ctx context.Context, userID, id string, oldKey, newKey []byte) (*resealed, error) {
	e, err := s.repomanager.Entries(s.db).Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	title, err := openTitle(oldKey, userID, id, e.Title)
	if err != nil {
		return nil, err
	}
	sealedTitle, err := sealTitle(newKey, userID, id, title)
	if err != nil {
		return nil, err
	}

	it := &resealed{id: id, oldHash: e.ContentHash, title: sealedTitle}
	if it.newHash, err = s.resealEnvelope(ctx, it, entryAlgorithm, entryAAD(userID, id), oldKey, newKey); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *DiaryService) resealMedia(ctx context.Context, userID, id string, oldKey, newKey []byte) (*resealed, error) {
	m, err := s.repomanager.Media(s.db).Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	it := &resealed{id: id, media: true, oldHash: m.ContentHash}
	if it.newHash, err = s.resealEnvelope(ctx, it, mediaAlgorithm, mediaAAD(userID, id, m.MimeType), oldKey, newKey); err != nil {
		return nil, err
	}
	return it, nil
}

// resealEnvelope opens the current envelope of it, seals the plaintext
// under newKey and stores it under the key of its new hash.
func (s *DiaryService) resealEnvelope(ctx context.Context, it *resealed, alg cryptox.Algorithm, aad, oldKey, newKey []byte) (string, error) {
	env, err := s.loadEnvelope(ctx, it.storeKey(it.oldHash), it.oldHash)
	if err != nil {
		return "", err
	}
	plaintext, err := cryptox.Open(oldKey, env, aad)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(plaintext)

	next, hash, err := seal(alg, newKey, plaintext, aad)
	if err != nil {
		return "", err
	}
	if err := s.store.Put(ctx, it.storeKey(hash), next); err != nil {
		return "", fmt.Errorf("put envelope: %w", err)
	}
	return hash, nil
}
