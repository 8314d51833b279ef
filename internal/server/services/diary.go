// Package services contains server-side business logic. DiaryService owns
// the diary lifecycle and every operation that reads or writes sealed entry
// and media content.
package services

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/cryptox"
	"github.com/dmitrijs2005/diarykeeper/internal/dbx"
	"github.com/dmitrijs2005/diarykeeper/internal/logging"
	"github.com/dmitrijs2005/diarykeeper/internal/server/config"
	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
	"github.com/dmitrijs2005/diarykeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/diarykeeper/internal/server/session"
	"github.com/dmitrijs2005/diarykeeper/internal/server/store"
)

const (
	entryAlgorithm = cryptox.AlgAES256GCM
	titleAlgorithm = cryptox.AlgAES256GCM
	mediaAlgorithm = cryptox.AlgXChaCha20Poly1305

	MaxHintLength   = 256
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// DiaryService gates entry and media content behind the session registry.
// Content operations acquire the diary key before touching any repository
// or envelope, so a locked diary causes no I/O at all. Metadata queries
// (lists, calendar, mood statistics) never open envelopes and work while
// locked.
type DiaryService struct {
	db           dbx.DB
	repomanager  repomanager.RepositoryManager
	store        store.EnvelopeStore
	sessions     *session.Registry
	maxMediaSize int64
	log          logging.Logger
}

func NewDiaryService(db dbx.DB, m repomanager.RepositoryManager, st store.EnvelopeStore,
	sessions *session.Registry, cfg *config.Config, log logging.Logger) *DiaryService {
	if log == nil {
		log = logging.Nop()
	}
	return &DiaryService{
		db:           db,
		repomanager:  m,
		store:        st,
		sessions:     sessions,
		maxMediaSize: cfg.MaxMediaSize,
		log:          log.With("module", "diary"),
	}
}

func entryAAD(userID, id string) []byte { return cryptox.AAD(userID, "entry", id) }

func titleAAD(userID, id string) []byte { return cryptox.AAD(userID, "title", id) }

func mediaAAD(userID, id, mimeType string) []byte {
	return cryptox.AAD(userID, "media", id, mimeType)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, common.ErrInvalidInput)...)
}

func checkID(name, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return invalid("%s %q is not a uuid", name, id)
	}
	return nil
}

// dayOf strips the clock from t, keeping its calendar date.
func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// --- lifecycle ---

func (s *DiaryService) GetStatus(ctx context.Context, userID string) (session.Info, error) {
	return s.sessions.Status(ctx, userID)
}

func (s *DiaryService) Setup(ctx context.Context, userID string, password []byte, hint string) error {
	if utf8.RuneCountInString(hint) > MaxHintLength {
		return invalid("hint longer than %d characters", MaxHintLength)
	}
	return s.sessions.Setup(ctx, userID, password, hint)
}

func (s *DiaryService) Unlock(ctx context.Context, userID string, password []byte) error {
	return s.sessions.Unlock(ctx, userID, password)
}

func (s *DiaryService) Lock(ctx context.Context, userID string) {
	s.sessions.Lock(ctx, userID)
}

// Logout locks the diary and drops the user's session state.
func (s *DiaryService) Logout(ctx context.Context, userID string) {
	s.sessions.Logout(ctx, userID)
}

// GetHint returns the password hint saved at setup. It is readable while
// the diary is locked.
func (s *DiaryService) GetHint(ctx context.Context, userID string) (string, error) {
	m, err := s.repomanager.KeyMaterial(s.db).Get(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrNotSetUp
		}
		return "", err
	}
	return m.Hint, nil
}

// ChangePassword re-keys the diary: every entry, title and media envelope is
// opened with the old key and sealed again with the new one.
func (s *DiaryService) ChangePassword(ctx context.Context, userID string, oldPassword, newPassword []byte) error {
	return s.sessions.ChangePassword(ctx, userID, oldPassword, newPassword, s.reencryptFor(userID))
}

// --- envelopes ---

// loadEnvelope fetches an envelope and checks it against the hash recorded
// on its metadata row. A missing or mismatched envelope is an integrity
// failure: the row says it exists.
func (s *DiaryService) loadEnvelope(ctx context.Context, key, wantHash string) (*cryptox.Envelope, error) {
	env, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("envelope %s missing: %w", key, common.ErrIntegrity)
		}
		return nil, fmt.Errorf("get envelope: %w", err)
	}
	hash, err := cryptox.ContentHash(env)
	if err != nil {
		return nil, err
	}
	if hash != wantHash {
		return nil, fmt.Errorf("envelope %s hash mismatch: %w", key, common.ErrIntegrity)
	}
	return env, nil
}

func seal(alg cryptox.Algorithm, key, plaintext, aad []byte) (*cryptox.Envelope, string, error) {
	env, err := cryptox.Seal(alg, key, plaintext, aad)
	if err != nil {
		return nil, "", err
	}
	hash, err := cryptox.ContentHash(env)
	if err != nil {
		return nil, "", err
	}
	return env, hash, nil
}

// sealTitle seals an entry title into the bytes kept on its row.
func sealTitle(key []byte, userID, id, title string) ([]byte, error) {
	env, err := cryptox.Seal(titleAlgorithm, key, []byte(title), titleAAD(userID, id))
	if err != nil {
		return nil, err
	}
	return env.MarshalBinary()
}

func openTitle(key []byte, userID, id string, sealed []byte) (string, error) {
	var env cryptox.Envelope
	if err := env.UnmarshalBinary(sealed); err != nil {
		return "", fmt.Errorf("entry %s title: %w", id, common.ErrIntegrity)
	}
	plaintext, err := cryptox.Open(key, &env, titleAAD(userID, id))
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(plaintext)
	return string(plaintext), nil
}

func checkTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return invalid("entry title is required")
	}
	if utf8.RuneCountInString(title) > models.MaxTitleLength {
		return invalid("title longer than %d characters", models.MaxTitleLength)
	}
	return nil
}

// --- entries ---

// CreateEntry seals title and content under the diary key and stores a new
// entry dated date. Only the calendar date of date is kept.
func (s *DiaryService) CreateEntry(ctx context.Context, userID string, date time.Time, title, mood, content string) (*models.Entry, error) {
	if date.IsZero() {
		return nil, invalid("entry date is required")
	}
	if err := checkTitle(title); err != nil {
		return nil, err
	}
	if utf8.RuneCountInString(mood) > models.MaxMoodLength {
		return nil, invalid("mood longer than %d characters", models.MaxMoodLength)
	}

	var entry *models.Entry
	err := s.sessions.WithKey(ctx, userID, func(key []byte) error {
		id := uuid.NewString()
		env, hash, err := seal(entryAlgorithm, key, []byte(content), entryAAD(userID, id))
		if err != nil {
			return err
		}
		sealedTitle, err := sealTitle(key, userID, id, title)
		if err != nil {
			return err
		}

		day := dayOf(date)
		e := &models.Entry{
			ID:          id,
			UserID:      userID,
			Date:        day,
			DayOfWeek:   models.DayOfWeek(day),
			Mood:        mood,
			Title:       sealedTitle,
			ContentHash: hash,
		}

		storeKey := models.EntryStoreKey(id, hash)
		if err := s.store.Put(ctx, storeKey, env); err != nil {
			return fmt.Errorf("put envelope: %w", err)
		}
		if err := s.repomanager.Entries(s.db).Create(ctx, e); err != nil {
			s.discard(ctx, storeKey)
			return fmt.Errorf("error creating entry: %w", err)
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "entry created", "user_id", userID, "entry_id", entry.ID)
	return entry, nil
}

// ReadEntry returns the entry row with its decrypted title and content.
func (s *DiaryService) ReadEntry(ctx context.Context, userID, id string) (*models.Entry, models.EntryText, error) {
	if err := checkID("entry id", id); err != nil {
		return nil, models.EntryText{}, err
	}

	var (
		entry *models.Entry
		text  models.EntryText
	)
	err := s.sessions.WithKey(ctx, userID, func(key []byte) error {
		e, err := s.repomanager.Entries(s.db).Get(ctx, userID, id)
		if err != nil {
			return err
		}
		env, err := s.loadEnvelope(ctx, models.EntryStoreKey(id, e.ContentHash), e.ContentHash)
		if err != nil {
			return err
		}
		plaintext, err := cryptox.Open(key, env, entryAAD(userID, id))
		if err != nil {
			s.log.Warn(ctx, "entry failed authentication", "user_id", userID, "entry_id", id)
			return err
		}
		defer common.WipeByteArray(plaintext)
		title, err := openTitle(key, userID, id, e.Title)
		if err != nil {
			s.log.Warn(ctx, "entry title failed authentication", "user_id", userID, "entry_id", id)
			return err
		}
		entry, text = e, models.EntryText{Title: title, Content: string(plaintext)}
		return nil
	})
	if err != nil {
		return nil, models.EntryText{}, err
	}
	return entry, text, nil
}

// UpdateEntry replaces an entry's content with a freshly sealed envelope.
// The new envelope gets its own store key and the row is switched to it
// only if nobody else changed the entry meanwhile; otherwise the update
// fails with common.ErrConflict and the stored entry is left as it was.
// A nil title or mood leaves the stored value as it is.
func (s *DiaryService) UpdateEntry(ctx context.Context, userID, id string, title *string, content string, mood *string) (*models.Entry, error) {
	if err := checkID("entry id", id); err != nil {
		return nil, err
	}
	if title != nil {
		if err := checkTitle(*title); err != nil {
			return nil, err
		}
	}
	if mood != nil && utf8.RuneCountInString(*mood) > models.MaxMoodLength {
		return nil, invalid("mood longer than %d characters", models.MaxMoodLength)
	}

	var entry *models.Entry
	err := s.sessions.WithKey(ctx, userID, func(key []byte) error {
		repo := s.repomanager.Entries(s.db)
		e, err := repo.Get(ctx, userID, id)
		if err != nil {
			return err
		}
		prevHash := e.ContentHash

		env, hash, err := seal(entryAlgorithm, key, []byte(content), entryAAD(userID, id))
		if err != nil {
			return err
		}
		if title != nil {
			if e.Title, err = sealTitle(key, userID, id, *title); err != nil {
				return err
			}
		}
		if mood != nil {
			e.Mood = *mood
		}
		e.ContentHash = hash

		storeKey := models.EntryStoreKey(id, hash)
		if err := s.store.Put(ctx, storeKey, env); err != nil {
			return fmt.Errorf("put envelope: %w", err)
		}
		if err := repo.Update(ctx, e, prevHash); err != nil {
			s.discard(ctx, storeKey)
			return fmt.Errorf("error updating entry: %w", err)
		}
		s.discard(ctx, models.EntryStoreKey(id, prevHash))
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteEntry removes the entry row and its envelope. Attached media are
// left in place.
func (s *DiaryService) DeleteEntry(ctx context.Context, userID, id string) error {
	if err := checkID("entry id", id); err != nil {
		return err
	}

	err := s.sessions.WithKey(ctx, userID, func([]byte) error {
		hash, err := s.repomanager.Entries(s.db).Delete(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := s.store.Delete(ctx, models.EntryStoreKey(id, hash)); err != nil {
			return fmt.Errorf("delete envelope: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info(ctx, "entry deleted", "user_id", userID, "entry_id", id)
	return nil
}

// ListEntries returns entry metadata newest first.
func (s *DiaryService) ListEntries(ctx context.Context, userID string, f models.EntryFilter) ([]*models.Entry, error) {
	if utf8.RuneCountInString(f.Mood) > models.MaxMoodLength {
		return nil, invalid("mood longer than %d characters", models.MaxMoodLength)
	}
	if f.DayOfWeek != nil && (*f.DayOfWeek < 0 || *f.DayOfWeek > 6) {
		return nil, invalid("day of week must be in [0, 6]")
	}
	if f.Limit < 0 || f.Limit > MaxPageSize || f.Offset < 0 {
		return nil, invalid("limit must be in [0, %d] and offset non-negative", MaxPageSize)
	}
	if f.Limit == 0 {
		f.Limit = DefaultPageSize
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, invalid("date range ends before it starts")
	}
	return s.repomanager.Entries(s.db).List(ctx, userID, f)
}

// Calendar returns per-day entry and media counts for one month.
func (s *DiaryService) Calendar(ctx context.Context, userID string, year, month int) ([]models.CalendarDay, error) {
	if month < 1 || month > 12 || year < 1 || year > 9999 {
		return nil, invalid("no such month %d-%d", year, month)
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return s.repomanager.Entries(s.db).Calendar(ctx, userID, from, from.AddDate(0, 1, 0))
}

func (s *DiaryService) MoodStats(ctx context.Context, userID string) (*models.MoodStats, error) {
	return s.repomanager.Entries(s.db).MoodStats(ctx, userID)
}

// --- media ---

// AttachMedia seals data for an existing entry. mimeType is bound into the
// envelope's associated data.
func (s *DiaryService) AttachMedia(ctx context.Context, userID, entryID string, data []byte, mimeType string) (*models.Media, error) {
	if err := checkID("entry id", entryID); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, invalid("media is empty")
	}
	if int64(len(data)) > s.maxMediaSize {
		return nil, invalid("media of %d bytes exceeds %d", len(data), s.maxMediaSize)
	}
	if _, _, err := mime.ParseMediaType(mimeType); err != nil {
		return nil, invalid("bad mime type %q", mimeType)
	}

	var media *models.Media
	err := s.sessions.WithKey(ctx, userID, func(key []byte) error {
		if _, err := s.repomanager.Entries(s.db).Get(ctx, userID, entryID); err != nil {
			return err
		}

		id := uuid.NewString()
		env, hash, err := seal(mediaAlgorithm, key, data, mediaAAD(userID, id, mimeType))
		if err != nil {
			return err
		}
		m := &models.Media{
			ID:          id,
			UserID:      userID,
			EntryID:     entryID,
			MimeType:    mimeType,
			Size:        int64(len(data)),
			ContentHash: hash,
		}

		storeKey := models.MediaStoreKey(id, hash)
		if err := s.store.Put(ctx, storeKey, env); err != nil {
			return fmt.Errorf("put envelope: %w", err)
		}
		err = s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			if err := s.repomanager.Media(tx).Create(ctx, m); err != nil {
				return fmt.Errorf("error creating media: %w", err)
			}
			return s.repomanager.Entries(tx).AdjustMediaCount(ctx, userID, entryID, 1)
		})
		if err != nil {
			s.discard(ctx, storeKey)
			return err
		}
		media = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "media attached", "user_id", userID, "entry_id", entryID, "media_id", media.ID, "size", media.Size)
	return media, nil
}

// ReadMedia returns the media row and its decrypted bytes.
func (s *DiaryService) ReadMedia(ctx context.Context, userID, id string) (*models.Media, []byte, error) {
	if err := checkID("media id", id); err != nil {
		return nil, nil, err
	}

	var (
		media *models.Media
		data  []byte
	)
	err := s.sessions.WithKey(ctx, userID, func(key []byte) error {
		m, err := s.repomanager.Media(s.db).Get(ctx, userID, id)
		if err != nil {
			return err
		}
		env, err := s.loadEnvelope(ctx, models.MediaStoreKey(id, m.ContentHash), m.ContentHash)
		if err != nil {
			return err
		}
		plaintext, err := cryptox.Open(key, env, mediaAAD(userID, id, m.MimeType))
		if err != nil {
			s.log.Warn(ctx, "media failed authentication", "user_id", userID, "media_id", id)
			return err
		}
		media, data = m, plaintext
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return media, data, nil
}

// ListMedia returns metadata of the media attached to an entry. The entry
// itself need not exist any more.
func (s *DiaryService) ListMedia(ctx context.Context, userID, entryID string) ([]*models.Media, error) {
	if err := checkID("entry id", entryID); err != nil {
		return nil, err
	}
	return s.repomanager.Media(s.db).ListByEntry(ctx, userID, entryID)
}

func (s *DiaryService) DeleteMedia(ctx context.Context, userID, id string) error {
	if err := checkID("media id", id); err != nil {
		return err
	}

	return s.sessions.WithKey(ctx, userID, func([]byte) error {
		var storeKey string
		err := s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			repo := s.repomanager.Media(tx)
			m, err := repo.Get(ctx, userID, id)
			if err != nil {
				return err
			}
			if err := repo.Delete(ctx, userID, id); err != nil {
				return err
			}
			storeKey = models.MediaStoreKey(id, m.ContentHash)
			return s.repomanager.Entries(tx).AdjustMediaCount(ctx, userID, m.EntryID, -1)
		})
		if err != nil {
			return err
		}
		if err := s.store.Delete(ctx, storeKey); err != nil {
			return fmt.Errorf("delete envelope: %w", err)
		}
		return nil
	})
}

// discard removes an envelope no row points at: one whose row could not be
// written, or a version a row has moved away from.
func (s *DiaryService) discard(ctx context.Context, storeKey string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), storeKey); err != nil {
		s.log.Error(ctx, "orphan envelope left behind", "store_key", storeKey, "error", err)
	}
}
