// Package grpc exposes the diary services over gRPC. Messages travel in the
// CBOR codec from internal/rpc; the service descriptor is declared by hand
// in desc.go.
package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/dmitrijs2005/diarykeeper/internal/logging"
	"github.com/dmitrijs2005/diarykeeper/internal/server/models"
	"github.com/dmitrijs2005/diarykeeper/internal/server/session"
)

type userSvc interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (string, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
}

type diarySvc interface {
	GetStatus(ctx context.Context, userID string) (session.Info, error)
	Setup(ctx context.Context, userID string, password []byte, hint string) error
	Unlock(ctx context.Context, userID string, password []byte) error
	Lock(ctx context.Context, userID string)
	Logout(ctx context.Context, userID string)
	GetHint(ctx context.Context, userID string) (string, error)
	ChangePassword(ctx context.Context, userID string, oldPassword, newPassword []byte) error

	CreateEntry(ctx context.Context, userID string, date time.Time, title, mood, content string) (*models.Entry, error)
	ReadEntry(ctx context.Context, userID, id string) (*models.Entry, models.EntryText, error)
	UpdateEntry(ctx context.Context, userID, id string, title *string, content string, mood *string) (*models.Entry, error)
	DeleteEntry(ctx context.Context, userID, id string) error
	ListEntries(ctx context.Context, userID string, f models.EntryFilter) ([]*models.Entry, error)
	Calendar(ctx context.Context, userID string, year, month int) ([]models.CalendarDay, error)
	MoodStats(ctx context.Context, userID string) (*models.MoodStats, error)

	AttachMedia(ctx context.Context, userID, entryID string, data []byte, mimeType string) (*models.Media, error)
	ReadMedia(ctx context.Context, userID, id string) (*models.Media, []byte, error)
	ListMedia(ctx context.Context, userID, entryID string) ([]*models.Media, error)
	DeleteMedia(ctx context.Context, userID, id string) error
}

type recoverySvc interface {
	Setup(ctx context.Context, userID string, questions, answers []string) (string, error)
	Questions(ctx context.Context, username string) ([]string, error)
	ResetWithAnswers(ctx context.Context, username string, answers []string, newPassword string) error
	ResetWithRecoveryKey(ctx context.Context, username, key, newPassword string) error
}

type GRPCServer struct {
	address   string
	users     userSvc
	diary     diarySvc
	recovery  recoverySvc
	logger    logging.Logger
	jwtSecret []byte
	maxMsg    int
}

// NewGRPCServer wires the services into a server listening on address.
// maxMediaSize sizes the receive limit so a full media upload fits.
func NewGRPCServer(address string, l logging.Logger, us userSvc, ds diarySvc, rs recoverySvc, secretKey string, maxMediaSize int64) *GRPCServer {
	return &GRPCServer{
		address:   address,
		logger:    l.With("module", "grpc_server"),
		users:     us,
		diary:     ds,
		recovery:  rs,
		jwtSecret: []byte(secretKey),
		maxMsg:    int(maxMediaSize) + 1<<20,
	}
}

// newServer builds the grpc.Server with interceptors and the diary service
// registered.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor),
		grpc.MaxRecvMsgSize(s.maxMsg),
		grpc.MaxSendMsgSize(s.maxMsg),
	)
	srv.RegisterService(&serviceDesc, s)
	return srv
}

// Run serves until ctx is cancelled, then stops gracefully.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve is Run on an existing listener.
func (s *GRPCServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}
	return nil
}
