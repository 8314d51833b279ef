package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/cryptox"
	"github.com/dmitrijs2005/diarykeeper/internal/dbx"
	"github.com/dmitrijs2005/diarykeeper/internal/logging"
	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
	"github.com/dmitrijs2005/diarykeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/diarykeeper/internal/timex"
)

const (
	MinRecoveryQuestions = 2
	MaxRecoveryQuestions = 10
	recoveryKeySize      = 32
	recoveryKeyGroup     = 8
	recoverySaltSize     = 16
)

// RecoveryService resets the login password through security answers or a
// one-time-shown recovery key. It never reads or writes diary key material
// or envelopes: recovering the account does not recover the diary.
type RecoveryService struct {
	db          dbx.DB
	repomanager repomanager.RepositoryManager
	clock       timex.Clock
	log         logging.Logger
}

func NewRecoveryService(db dbx.DB, m repomanager.RepositoryManager, clock timex.Clock, log logging.Logger) *RecoveryService {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	if log == nil {
		log = logging.Nop()
	}
	return &RecoveryService{
		db:          db,
		repomanager: m,
		clock:       clock,
		log:         log.With("module", "recovery"),
	}
}

// formatRecoveryKey renders raw as lowercase hex in dash-separated groups.
func formatRecoveryKey(raw []byte) string {
	h := hex.EncodeToString(raw)
	groups := make([]string, 0, len(h)/recoveryKeyGroup)
	for i := 0; i < len(h); i += recoveryKeyGroup {
		groups = append(groups, h[i:i+recoveryKeyGroup])
	}
	return strings.Join(groups, "-")
}

// parseRecoveryKey accepts the key with or without grouping, in any case.
func parseRecoveryKey(key string) ([]byte, bool) {
	key = strings.ToLower(strings.NewReplacer("-", "", " ", "").Replace(key))
	raw, err := hex.DecodeString(key)
	if err != nil || len(raw) != recoveryKeySize {
		return nil, false
	}
	return raw, true
}

// Setup stores security questions with hashed answers and issues a new
// recovery key, replacing any earlier credential. The returned key is not
// stored and cannot be shown again.
func (s *RecoveryService) Setup(ctx context.Context, userID string, questions, answers []string) (string, error) {
	if len(questions) < MinRecoveryQuestions || len(questions) > MaxRecoveryQuestions {
		return "", invalid("between %d and %d questions required", MinRecoveryQuestions, MaxRecoveryQuestions)
	}
	if len(questions) != len(answers) {
		return "", invalid("%d questions but %d answers", len(questions), len(answers))
	}

	cred := &models.RecoveryCredential{UserID: userID}
	for i, q := range questions {
		if strings.TrimSpace(q) == "" || answers[i] == "" {
			return "", invalid("question %d is incomplete", i+1)
		}
		salt := common.GenerateRandByteArray(recoverySaltSize)
		cred.Questions = append(cred.Questions, models.RecoveryQuestion{
			Position:   i,
			Question:   q,
			AnswerHash: cryptox.HashSecret([]byte(answers[i]), salt),
			AnswerSalt: salt,
		})
	}

	raw := common.GenerateRandByteArray(recoveryKeySize)
	defer common.WipeByteArray(raw)
	cred.KeySalt = common.GenerateRandByteArray(recoverySaltSize)
	cred.KeyHash = cryptox.HashSecret(raw, cred.KeySalt)
	cred.CreatedAt = s.clock.Now()

	err := s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Recovery(tx).Save(ctx, cred)
	})
	if err != nil {
		return "", fmt.Errorf("error saving recovery credential: %w", err)
	}

	s.log.Info(ctx, "recovery configured", "user_id", userID, "questions", len(questions))
	return formatRecoveryKey(raw), nil
}

// credentialOf resolves a username to its account and recovery credential.
// Any absence reads as a failed recovery so usernames cannot be discovered.
func (s *RecoveryService) credentialOf(ctx context.Context, username string) (*models.User, *models.RecoveryCredential, error) {
	user, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrRecoveryFailed
		}
		return nil, nil, err
	}
	cred, err := s.repomanager.Recovery(s.db).Get(ctx, user.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrRecoveryFailed
		}
		return nil, nil, err
	}
	return user, cred, nil
}

// Questions returns the security question texts in order.
func (s *RecoveryService) Questions(ctx context.Context, username string) ([]string, error) {
	_, cred, err := s.credentialOf(ctx, username)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(cred.Questions))
	for i, q := range cred.Questions {
		out[i] = q.Question
	}
	return out, nil
}

// ResetWithAnswers sets a new login password when every answer matches
// exactly. Every answer is checked even after a mismatch.
func (s *RecoveryService) ResetWithAnswers(ctx context.Context, username string, answers []string, newPassword string) error {
	if err := validateLoginPassword(newPassword); err != nil {
		return err
	}
	user, cred, err := s.credentialOf(ctx, username)
	if err != nil {
		return err
	}

	ok := len(answers) == len(cred.Questions)
	for i, q := range cred.Questions {
		var a string
		if i < len(answers) {
			a = answers[i]
		}
		if !cryptox.VerifySecret([]byte(a), q.AnswerSalt, q.AnswerHash) {
			ok = false
		}
	}
	if !ok {
		s.log.Warn(ctx, "recovery answers rejected", "user_id", user.ID)
		return common.ErrRecoveryFailed
	}
	return s.resetPassword(ctx, user.ID, newPassword, "answers")
}

// ResetWithRecoveryKey sets a new login password when key matches the
// stored recovery key. The key stays valid afterwards.
func (s *RecoveryService) ResetWithRecoveryKey(ctx context.Context, username, key, newPassword string) error {
	if err := validateLoginPassword(newPassword); err != nil {
		return err
	}
	user, cred, err := s.credentialOf(ctx, username)
	if err != nil {
		return err
	}

	raw, ok := parseRecoveryKey(key)
	if ok {
		ok = cryptox.VerifySecret(raw, cred.KeySalt, cred.KeyHash)
		common.WipeByteArray(raw)
	}
	if !ok {
		s.log.Warn(ctx, "recovery key rejected", "user_id", user.ID)
		return common.ErrRecoveryFailed
	}
	return s.resetPassword(ctx, user.ID, newPassword, "recovery_key")
}

func (s *RecoveryService) resetPassword(ctx context.Context, userID, newPassword, method string) error {
	hash, salt := hashLoginPassword(newPassword)
	err := s.db.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).UpdatePassword(ctx, userID, hash, salt); err != nil {
			return err
		}
		return s.repomanager.Recovery(tx).MarkUsed(ctx, userID, s.clock.Now())
	})
	if err != nil {
		return fmt.Errorf("error resetting password: %w", err)
	}

	s.log.Info(ctx, "login password reset", "user_id", userID, "method", method)
	return nil
}
