package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/diarykeeper/internal/common"
	"github.com/dmitrijs2005/diarykeeper/internal/rpc"
)

// GRPCClient is the typed diary stub plus session handling. Login stores
// the access token; every later call sends it.
type GRPCClient struct {
	*rpc.Client

	endpointURL string
	conn        *grpc.ClientConn

	mu          sync.RWMutex
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

func (s *GRPCClient) setToken(t string) {
	s.mu.Lock()
	s.accessToken = t
	s.mu.Unlock()
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if t := s.token(); t != "" {
		ctx = withAccessToken(ctx, t)
	}
	return MapError(invoker(ctx, method, req, reply, cc, opts...))
}

// NewDiaryClient connects to endpointURL without TLS. Extra options are
// appended to the defaults.
func NewDiaryClient(endpointURL string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.Client = rpc.NewClient(conn)
	return c, nil
}

// Login authenticates and keeps the access token for later calls.
func (s *GRPCClient) Login(ctx context.Context, userName, password string) error {
	resp, err := s.Client.Login(ctx, &rpc.LoginRequest{Username: userName, Password: password})
	if err != nil {
		return err
	}
	s.setToken(resp.AccessToken)
	return nil
}

// Logout locks the diary on the server and forgets the token even if the
// server could not be reached.
func (s *GRPCClient) Logout(ctx context.Context) error {
	err := s.Client.Logout(ctx)
	s.setToken("")
	return err
}

func (s *GRPCClient) LoggedIn() bool {
	return s.token() != ""
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

// sentinels are the server errors whose text travels as the status message.
var sentinels = []error{
	common.ErrWrongPassword,
	common.ErrRecoveryFailed,
	common.ErrorUnauthorized,
	common.ErrInvalidToken,
	common.ErrTokenExpired,
	common.ErrDiaryLocked,
	common.ErrNotSetUp,
	common.ErrAlreadySetUp,
	common.ErrIntegrity,
	common.ErrorNotFound,
	common.ErrConflict,
	common.ErrUserExists,
}

// MapError turns a gRPC status into an error that matches the server's
// sentinel with errors.Is. Transport failures become ErrUnavailable.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if st.Code() == codes.InvalidArgument {
		msg := strings.TrimSuffix(st.Message(), ": "+common.ErrInvalidInput.Error())
		if msg == common.ErrInvalidInput.Error() {
			return common.ErrInvalidInput
		}
		return fmt.Errorf("%s: %w", msg, common.ErrInvalidInput)
	}
	for _, s := range sentinels {
		if st.Message() == s.Error() {
			return s
		}
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	default:
		return errors.New(st.Message())
	}
}
