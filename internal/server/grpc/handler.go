package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/rpc"
	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
)

var empty = &rpc.Empty{}

// fail converts err to a status, logging anything that maps to Internal.
func (s *GRPCServer) fail(ctx context.Context, err error) error {
	st := toStatus(err)
	if status.Code(st) == codes.Internal {
		s.logger.Error(ctx, "request failed", "error", err)
	}
	return st
}

func principal(ctx context.Context) (string, error) {
	id, ok := userIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return id, nil
}

func parseDate(field, v string) (time.Time, error) {
	t, err := time.Parse(rpc.DateLayout, v)
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "%s must be YYYY-MM-DD", field)
	}
	return t, nil
}

func entryToRPC(e *models.Entry) rpc.Entry {
	return rpc.Entry{
		ID:         e.ID,
		Date:       e.Date.Format(rpc.DateLayout),
		DayOfWeek:  e.DayOfWeek,
		Mood:       e.Mood,
		MediaCount: e.MediaCount,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

func mediaToRPC(m *models.Media) rpc.Media {
	return rpc.Media{
		ID:        m.ID,
		EntryID:   m.EntryID,
		MimeType:  m.MimeType,
		Size:      m.Size,
		CreatedAt: m.CreatedAt,
	}
}

func (s *GRPCServer) Ping(ctx context.Context, _ *rpc.Empty) (*rpc.PingResponse, error) {
	return &rpc.PingResponse{Status: "OK"}, nil
}

// --- account ---

func (s *GRPCServer) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	u, err := s.users.Register(ctx, req.Username, req.Password)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &rpc.RegisterResponse{UserID: u.ID}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *rpc.LoginRequest) (*rpc.LoginResponse, error) {
	token, err := s.users.Login(ctx, req.Username, req.Password)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &rpc.LoginResponse{AccessToken: token}, nil
}

// Logout locks the caller's diary. The access token stays valid until it
// expires; the client discards it.
func (s *GRPCServer) Logout(ctx context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	s.diary.Logout(ctx, userID)
	return empty, nil
}

// ChangeLoginPassword changes the account password; the diary stays as it is.
func (s *GRPCServer) ChangeLoginPassword(ctx context.Context, req *rpc.ChangeLoginPasswordRequest) (*rpc.Empty, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.users.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword); err != nil {
		return nil, s.fail(ctx, err)
	}
	return empty, nil
}

// --- lock lifecycle ---

func (s *GRPCServer) GetStatus(ctx context.Context, _ *rpc.Empty) (*rpc.StatusResponse, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	info, err := s.diary.GetStatus(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	resp := &rpc.StatusResponse{Status: info.Status.String(), RemainingSeconds: info.RemainingSeconds}
	if !info.UnlockedAt.IsZero() {
		at := info.UnlockedAt
		resp.UnlockedAt = &at
	}
	return resp, nil
}

func (s *GRPCServer) Setup(ctx context.Context, req *rpc.SetupRequest) (*rpc.Empty, error) {
	defer common.WipeByteArray(req.Password)
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.diary.Setup(ctx, userID, req.Password, req.Hint); err != nil {
		return nil, s.fail(ctx, err)
	}
	return empty, nil
}

func (s *GRPCServer) Unlock(ctx context.Context, req *rpc.UnlockRequest) (*rpc.Empty, error) {
	defer common.WipeByteArray(req.Password)
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.diary.Unlock(ctx, userID, req.Password); err != nil {
		return nil, s.fail(ctx, err)
	}
	return empty, nil
}

func (s *GRPCServer) Lock(ctx context.Context, _ *rpc.Empty) (*rpc.Empty, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	s.diary.Lock(ctx, userID)
	return empty, nil
}

func (s *GRPCServer) GetHint(ctx context.Context, _ *rpc.Empty) (*rpc.HintResponse, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	hint, err := s.diary.GetHint(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &rpc.HintResponse{Hint: hint}, nil
}

func (s *GRPCServer) ChangePassword(ctx context.Context, req *rpc.ChangePasswordRequest) (*rpc.Empty, error) {
	defer common.WipeByteArray(req.OldPassword)
	defer common.WipeByteArray(req.NewPassword)
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.diary.ChangePassword(ctx, userID, req.OldPassword, req.NewPassword); err != nil {
		return nil, s.fail(ctx, err)
	}
	return empty, nil
}

// --- entries ---

func (s *GRPCServer) CreateEntry(ctx context.Context, req *rpc.CreateEntryRequest) (*rpc.EntryResponse, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return nil, err
	}
	e, err := s.diary.CreateEntry(ctx, userID, date, req.Title, req.Mood, req.Content)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &rpc.EntryResponse{Entry: entryToRPC(e)}, nil
}

func (s *GRPCServer) ReadEntry(ctx context.Context, req *rpc.IDRequest) (*rpc.ReadEntryResponse, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	e, text, err := s.diary.ReadEntry(ctx, userID, req.ID)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &rpc.ReadEntryResponse{Entry: entryToRPC(e), Title: text.Title, Content: text.Content}, nil
}

func (s *GRPCServer) UpdateEntry(ctx context.Context, req *rpc.UpdateEntryRequest) (*rpc.EntryResponse, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	e, err := s.diary.UpdateEntry(ctx, userID, req.ID, req.Title, req.Content, req.Mood)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &rpc.EntryResponse{Entry: entryToRPC(e)}, nil
}

func (s *GRPCServer) DeleteEntry(ctx context.Context, req *rpc.IDRequest) (*rpc.Empty, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.diary.DeleteEntry(ctx, userID, req.ID); err != nil {
		return nil, s.fail(ctx, err)
	}
	return empty, nil
}

func (s *GRPCServer) ListEntries(ctx context.Context, req *rpc.ListEntriesRequest) (*rpc.ListEntriesResponse, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	f := models.EntryFilter{Mood: req.Mood, DayOfWeek: req.DayOfWeek, Limit: req.Limit, Offset: req.Offset}
	if req.From != "" {
		from, err := parseDate("from", req.From)
		if err != nil {
			return nil, err
		}
		f.From = &from
	}
	if req.To != "" {
		to, err := parseDate("to", req.To)
		if err != nil {
			return nil, err
		}
		f.To = &to
	}

	list, err := s.diary.ListEntries(ctx, userID, f)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	resp := &rpc.ListEntriesResponse{Entries: make([]rpc.Entry, 0, len(list))}
	for _, e := range list {
		resp.Entries = append(resp.Entries, entryToRPC(e))
	}
	return resp, nil
}

func (s *GRPCServer) Calendar(ctx context.Context, req *rpc.CalendarRequest) (*rpc.CalendarResponse, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	days, err := s.diary.Calendar(ctx, userID, req.Year, req.Month)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	resp := &rpc.CalendarResponse{Days: make([]rpc.CalendarDay, 0, len(days))}
	for _, d := range days {
		resp.Days = append(resp.Days, rpc.CalendarDay{
			Date:       d.Date.Format(rpc.DateLayout),
			EntryCount: d.EntryCount,
			MediaCount: d.MediaCount,
		})
	}
	return resp, nil
}

func (s *GRPCServer) MoodStats(ctx context.Context, _ *rpc.Empty) (*rpc.MoodStatsResponse, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := s.diary.MoodStats(ctx, userID)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &rpc.MoodStatsResponse{Distribution: stats.Distribution, Total: stats.Total}, nil
}

// --- media ---

func (s *GRPCServer) AttachMedia(ctx context.Context, req *rpc.AttachMediaRequest) (*rpc.MediaResponse, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	m, err := s.diary.AttachMedia(ctx, userID, req.EntryID, req.Data, req.MimeType)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &rpc.MediaResponse{Media: mediaToRPC(m)}, nil
}

func (s *GRPCServer) ReadMedia(ctx context.Context, req *rpc.IDRequest) (*rpc.ReadMediaResponse, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	m, data, err := s.diary.ReadMedia(ctx, userID, req.ID)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &rpc.ReadMediaResponse{Media: mediaToRPC(m), Data: data}, nil
}

func (s *GRPCServer) ListMedia(ctx context.Context, req *rpc.ListMediaRequest) (*rpc.ListMediaResponse, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	list, err := s.diary.ListMedia(ctx, userID, req.EntryID)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	resp := &rpc.ListMediaResponse{Media: make([]rpc.Media, 0, len(list))}
	for _, m := range list {
		resp.Media = append(resp.Media, mediaToRPC(m))
	}
	return resp, nil
}

func (s *GRPCServer) DeleteMedia(ctx context.Context, req *rpc.IDRequest) (*rpc.Empty, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.diary.DeleteMedia(ctx, userID, req.ID); err != nil {
		return nil, s.fail(ctx, err)
	}
	return empty, nil
}

// --- recovery ---

func (s *GRPCServer) SetupRecovery(ctx context.Context, req *rpc.SetupRecoveryRequest) (*rpc.SetupRecoveryResponse, error) {
	userID, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	key, err := s.recovery.Setup(ctx, userID, req.Questions, req.Answers)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &rpc.SetupRecoveryResponse{RecoveryKey: key}, nil
}

func (s *GRPCServer) GetRecoveryQuestions(ctx context.Context, req *rpc.RecoveryQuestionsRequest) (*rpc.RecoveryQuestionsResponse, error) {
	questions, err := s.recovery.Questions(ctx, req.Username)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	return &rpc.RecoveryQuestionsResponse{Questions: questions}, nil
}

func (s *GRPCServer) ResetPasswordWithAnswers(ctx context.Context, req *rpc.ResetWithAnswersRequest) (*rpc.Empty, error) {
	if err := s.recovery.ResetWithAnswers(ctx, req.Username, req.Answers, req.NewPassword); err != nil {
		return nil, s.fail(ctx, err)
	}
	return empty, nil
}

func (s *GRPCServer) ResetPasswordWithRecoveryKey(ctx context.Context, req *rpc.ResetWithRecoveryKeyRequest) (*rpc.Empty, error) {
	if err := s.recovery.ResetWithRecoveryKey(ctx, req.Username, req.RecoveryKey, req.NewPassword); err != nil {
		return nil, s.fail(ctx, err)
	}
	return empty, nil
}
