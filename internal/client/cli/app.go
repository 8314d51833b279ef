package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/diarykeeper/internal/client/client"
	"github.com/dmitrijs2005/diarykeeper/internal/client/config"
	"github.com/dmitrijs2005/diarykeeper/internal/rpc"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// diaryAPI is the part of client.GRPCClient the commands use.
type diaryAPI interface {
	Ping(ctx context.Context) (*rpc.PingResponse, error)
	Register(ctx context.Context, req *rpc.RegisterRequest) (*rpc.RegisterResponse, error)
	Login(ctx context.Context, userName, password string) error
	Logout(ctx context.Context) error
	ChangeLoginPassword(ctx context.Context, req *rpc.ChangeLoginPasswordRequest) error
	LoggedIn() bool
	Close() error

	GetStatus(ctx context.Context) (*rpc.StatusResponse, error)
	Setup(ctx context.Context, req *rpc.SetupRequest) error
	Unlock(ctx context.Context, req *rpc.UnlockRequest) error
	Lock(ctx context.Context) error
	GetHint(ctx context.Context) (*rpc.HintResponse, error)
	ChangePassword(ctx context.Context, req *rpc.ChangePasswordRequest) error

	CreateEntry(ctx context.Context, req *rpc.CreateEntryRequest) (*rpc.EntryResponse, error)
	ReadEntry(ctx context.Context, id string) (*rpc.ReadEntryResponse, error)
	UpdateEntry(ctx context.Context, req *rpc.UpdateEntryRequest) (*rpc.EntryResponse, error)
	DeleteEntry(ctx context.Context, id string) error
	ListEntries(ctx context.Context, req *rpc.ListEntriesRequest) (*rpc.ListEntriesResponse, error)
	Calendar(ctx context.Context, req *rpc.CalendarRequest) (*rpc.CalendarResponse, error)
	MoodStats(ctx context.Context) (*rpc.MoodStatsResponse, error)

	AttachMedia(ctx context.Context, req *rpc.AttachMediaRequest) (*rpc.MediaResponse, error)
	ReadMedia(ctx context.Context, id string) (*rpc.ReadMediaResponse, error)
	ListMedia(ctx context.Context, entryID string) (*rpc.ListMediaResponse, error)
	DeleteMedia(ctx context.Context, id string) error

	SetupRecovery(ctx context.Context, req *rpc.SetupRecoveryRequest) (*rpc.SetupRecoveryResponse, error)
	GetRecoveryQuestions(ctx context.Context, username string) (*rpc.RecoveryQuestionsResponse, error)
	ResetPasswordWithAnswers(ctx context.Context, req *rpc.ResetWithAnswersRequest) error
	ResetPasswordWithRecoveryKey(ctx context.Context, req *rpc.ResetWithRecoveryKeyRequest) error
}

type App struct {
	config *config.Config
	api    diaryAPI
	reader *bufio.Reader
	out    io.Writer

	mu       sync.Mutex
	userName string
	mode     Mode
}

func NewApp(c *config.Config) (*App, error) {
	apiClient, err := client.NewDiaryClient(c.ServerEndpointAddr)
	if err != nil {
		return nil, err
	}
	return newApp(c, apiClient, bufio.NewReader(os.Stdin), os.Stdout), nil
}

func newApp(c *config.Config, api diaryAPI, reader *bufio.Reader, out io.Writer) *App {
	return &App{config: c, api: api, reader: reader, out: out}
}

// Run starts the connectivity watcher and the REPL and returns when the
// user exits. A logged-in diary is locked on the way out.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.api.Close()

	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	fmt.Fprintln(a.out, "Diary CLI (type 'help' for commands)")
	runREPL(ctx, a.commands(), a.isLoggedIn, a.getStatus, a.reader, a.out)

	if a.isLoggedIn() {
		_ = a.Logout(context.WithoutCancel(ctx), nil)
	}
}

func (a *App) isLoggedIn() bool {
	return a.api.LoggedIn()
}

func (a *App) getStatus() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.userName
	if a.mode != "" {
		if s != "" {
			s += " "
		}
		s += string(a.mode)
	}
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	a.mode = mode
	a.mu.Unlock()
}

func (a *App) setUserName(name string) {
	a.mu.Lock()
	a.userName = name
	a.mu.Unlock()
}

// call bounds one request by the configured timeout.
func (a *App) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.config.RequestTimeout)
}

func (a *App) checkOnline(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := a.api.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
		return
	}
	a.setMode(ModeOnline)
}

// StartOnlineStatusWatcher pings the server every interval until ctx is
// done and keeps the prompt's online/offline marker current.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	a.checkOnline(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}
