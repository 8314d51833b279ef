package cli

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/diarykeeper/internal/client/config"
	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/rpc"
)

// fakeAPI is a small in-memory diary with the server's lock semantics.
type fakeAPI struct {
	mu       sync.Mutex
	user     string
	password string
	diaryPW  string
	hint     string
	unlocked bool
	entries  map[string]*rpc.ReadEntryResponse
	media    map[string]*rpc.ReadMediaResponse
	seq      int
	calls    []string
	pingErr  error
	closed   bool
	recovery *rpc.SetupRecoveryRequest
	reset    string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		password: "login-pass",
		entries:  map[string]*rpc.ReadEntryResponse{},
		media:    map[string]*rpc.ReadMediaResponse{},
	}
}

func (f *fakeAPI) record(name string) {
	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.mu.Unlock()
}

func (f *fakeAPI) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func (f *fakeAPI) Ping(ctx context.Context) (*rpc.PingResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &rpc.PingResponse{Status: "OK"}, f.pingErr
}

func (f *fakeAPI) Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.RegisterResponse, error) {
	f.record("Register")
	f.password = req.Password
	return &rpc.RegisterResponse{UserID: "u1"}, nil
}

func (f *fakeAPI) Login(ctx context.Context, userName, password string) error {
	f.record("Login")
	if password != f.password {
		return common.ErrorUnauthorized
	}
	f.user = userName
	return nil
}

func (f *fakeAPI) Logout(ctx context.Context) error {
	f.record("Logout")
	f.user, f.unlocked = "", false
	return nil
}

func (f *fakeAPI) ChangeLoginPassword(ctx context.Context, req *rpc.ChangeLoginPasswordRequest) error {
	f.record("ChangeLoginPassword")
	if req.CurrentPassword != f.password {
		return common.ErrWrongPassword
	}
	f.password = req.NewPassword
	return nil
}

func (f *fakeAPI) LoggedIn() bool { return f.user != "" }

func (f *fakeAPI) Close() error {
	f.closed = true
	return nil
}

func (f *fakeAPI) GetStatus(ctx context.Context) (*rpc.StatusResponse, error) {
	switch {
	case f.diaryPW == "":
		return &rpc.StatusResponse{Status: "not_set_up"}, nil
	case f.unlocked:
		at := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
		return &rpc.StatusResponse{Status: "unlocked", RemainingSeconds: 1800, UnlockedAt: &at}, nil
	default:
		return &rpc.StatusResponse{Status: "locked"}, nil
	}
}

func (f *fakeAPI) Setup(ctx context.Context, req *rpc.SetupRequest) error {
	f.record("Setup")
	if f.diaryPW != "" {
		return common.ErrAlreadySetUp
	}
	f.diaryPW, f.hint, f.unlocked = string(req.Password), req.Hint, true
	return nil
}

func (f *fakeAPI) Unlock(ctx context.Context, req *rpc.UnlockRequest) error {
	f.record("Unlock")
	if f.diaryPW == "" {
		return common.ErrNotSetUp
	}
	if string(req.Password) != f.diaryPW {
		return common.ErrWrongPassword
	}
	f.unlocked = true
	return nil
}

func (f *fakeAPI) Lock(ctx context.Context) error {
	f.record("Lock")
	f.unlocked = false
	return nil
}

func (f *fakeAPI) GetHint(ctx context.Context) (*rpc.HintResponse, error) {
	return &rpc.HintResponse{Hint: f.hint}, nil
}

func (f *fakeAPI) ChangePassword(ctx context.Context, req *rpc.ChangePasswordRequest) error {
	f.record("ChangePassword")
	if string(req.OldPassword) != f.diaryPW {
		return common.ErrWrongPassword
	}
	f.diaryPW = string(req.NewPassword)
	return nil
}

func (f *fakeAPI) locked() error {
	if !f.unlocked {
		return common.ErrDiaryLocked
	}
	return nil
}

func (f *fakeAPI) CreateEntry(ctx context.Context, req *rpc.CreateEntryRequest) (*rpc.EntryResponse, error) {
	f.record("CreateEntry")
	if err := f.locked(); err != nil {
		return nil, err
	}
	e := rpc.Entry{ID: f.nextID("e"), Date: req.Date, Mood: req.Mood}
	f.entries[e.ID] = &rpc.ReadEntryResponse{Entry: e, Title: req.Title, Content: req.Content}
	return &rpc.EntryResponse{Entry: e}, nil
}

func (f *fakeAPI) ReadEntry(ctx context.Context, id string) (*rpc.ReadEntryResponse, error) {
	f.record("ReadEntry")
	if err := f.locked(); err != nil {
		return nil, err
	}
	e, ok := f.entries[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return e, nil
}

func (f *fakeAPI) UpdateEntry(ctx context.Context, req *rpc.UpdateEntryRequest) (*rpc.EntryResponse, error) {
	f.record("UpdateEntry")
	if err := f.locked(); err != nil {
		return nil, err
	}
	e, ok := f.entries[req.ID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	e.Content = req.Content
	if req.Title != nil {
		e.Title = *req.Title
	}
	if req.Mood != nil {
		e.Entry.Mood = *req.Mood
	}
	return &rpc.EntryResponse{Entry: e.Entry}, nil
}

func (f *fakeAPI) DeleteEntry(ctx context.Context, id string) error {
	f.record("DeleteEntry")
	delete(f.entries, id)
	return nil
}

func (f *fakeAPI) ListEntries(ctx context.Context, req *rpc.ListEntriesRequest) (*rpc.ListEntriesResponse, error) {
	f.record("ListEntries")
	resp := &rpc.ListEntriesResponse{}
	for _, e := range f.entries {
		if req.Mood == "" || req.Mood == e.Entry.Mood {
			resp.Entries = append(resp.Entries, e.Entry)
		}
	}
	return resp, nil
}

func (f *fakeAPI) Calendar(ctx context.Context, req *rpc.CalendarRequest) (*rpc.CalendarResponse, error) {
	f.record(fmt.Sprintf("Calendar %d-%02d", req.Year, req.Month))
	return &rpc.CalendarResponse{Days: []rpc.CalendarDay{{Date: "2025-01-01", EntryCount: 2, MediaCount: 1}}}, nil
}

func (f *fakeAPI) MoodStats(ctx context.Context) (*rpc.MoodStatsResponse, error) {
	return &rpc.MoodStatsResponse{Distribution: map[string]int{"ok": 2, "sad": 1}, Total: 4}, nil
}

func (f *fakeAPI) AttachMedia(ctx context.Context, req *rpc.AttachMediaRequest) (*rpc.MediaResponse, error) {
	f.record("AttachMedia " + req.MimeType)
	if err := f.locked(); err != nil {
		return nil, err
	}
	m := rpc.Media{ID: f.nextID("m"), EntryID: req.EntryID, MimeType: req.MimeType, Size: int64(len(req.Data))}
	f.media[m.ID] = &rpc.ReadMediaResponse{Media: m, Data: req.Data}
	return &rpc.MediaResponse{Media: m}, nil
}

func (f *fakeAPI) ReadMedia(ctx context.Context, id string) (*rpc.ReadMediaResponse, error) {
	if err := f.locked(); err != nil {
		return nil, err
	}
	m, ok := f.media[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return m, nil
}

func (f *fakeAPI) ListMedia(ctx context.Context, entryID string) (*rpc.ListMediaResponse, error) {
	resp := &rpc.ListMediaResponse{}
	for _, m := range f.media {
		if m.Media.EntryID == entryID {
			resp.Media = append(resp.Media, m.Media)
		}
	}
	return resp, nil
}

func (f *fakeAPI) DeleteMedia(ctx context.Context, id string) error {
	f.record("DeleteMedia")
	delete(f.media, id)
	return nil
}

func (f *fakeAPI) SetupRecovery(ctx context.Context, req *rpc.SetupRecoveryRequest) (*rpc.SetupRecoveryResponse, error) {
	f.recovery = req
	return &rpc.SetupRecoveryResponse{RecoveryKey: "aaaa-bbbb"}, nil
}

func (f *fakeAPI) GetRecoveryQuestions(ctx context.Context, username string) (*rpc.RecoveryQuestionsResponse, error) {
	if f.recovery == nil {
		return nil, common.ErrRecoveryFailed
	}
	return &rpc.RecoveryQuestionsResponse{Questions: f.recovery.Questions}, nil
}

func (f *fakeAPI) ResetPasswordWithAnswers(ctx context.Context, req *rpc.ResetWithAnswersRequest) error {
	for i, a := range f.recovery.Answers {
		if i >= len(req.Answers) || req.Answers[i] != a {
			return common.ErrRecoveryFailed
		}
	}
	f.password, f.reset = req.NewPassword, "answers"
	return nil
}

func (f *fakeAPI) ResetPasswordWithRecoveryKey(ctx context.Context, req *rpc.ResetWithRecoveryKeyRequest) error {
	if req.RecoveryKey != "aaaa-bbbb" {
		return common.ErrRecoveryFailed
	}
	f.password, f.reset = req.NewPassword, "key"
	return nil
}

// passwords queues the answers of successive password prompts.
func passwords(t *testing.T, pws ...string) {
	t.Helper()
	old := readPassword
	t.Cleanup(func() { readPassword = old })

	var mu sync.Mutex
	readPassword = func(int) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(pws) == 0 {
			t.Fatal("unexpected password prompt")
		}
		pw := pws[0]
		pws = pws[1:]
		return []byte(pw), nil
	}
}

func newTestApp(t *testing.T, api *fakeAPI, input ...string) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.MediaDir = t.TempDir()

	out := &bytes.Buffer{}
	r := bufio.NewReader(strings.NewReader(strings.Join(input, "\n") + "\n"))
	return newApp(cfg, api, r, out), out
}
