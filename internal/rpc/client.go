package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client is a typed stub for the diary service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	resp := new(Resp)
	if err := c.cc.Invoke(ctx, FullMethod(method), req, resp, grpc.CallContentSubtype(CodecName)); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Ping(ctx context.Context) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c, MethodPing, &Empty{})
}

func (c *Client) Register(ctx context.Context, req *RegisterRequest) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c, MethodRegister, req)
}

func (c *Client) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c, MethodLogin, req)
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := invoke[Empty](ctx, c, MethodLogout, &Empty{})
	return err
}

func (c *Client) ChangeLoginPassword(ctx context.Context, req *ChangeLoginPasswordRequest) error {
	_, err := invoke[Empty](ctx, c, MethodChangeLoginPassword, req)
	return err
}

func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	return invoke[StatusResponse](ctx, c, MethodGetStatus, &Empty{})
}

func (c *Client) Setup(ctx context.Context, req *SetupRequest) error {
	_, err := invoke[Empty](ctx, c, MethodSetup, req)
	return err
}

func (c *Client) Unlock(ctx context.Context, req *UnlockRequest) error {
	_, err := invoke[Empty](ctx, c, MethodUnlock, req)
	return err
}

func (c *Client) Lock(ctx context.Context) error {
	_, err := invoke[Empty](ctx, c, MethodLock, &Empty{})
	return err
}

func (c *Client) GetHint(ctx context.Context) (*HintResponse, error) {
	return invoke[HintResponse](ctx, c, MethodGetHint, &Empty{})
}

func (c *Client) ChangePassword(ctx context.Context, req *ChangePasswordRequest) error {
	_, err := invoke[Empty](ctx, c, MethodChangePassword, req)
	return err
}

func (c *Client) CreateEntry(ctx context.Context, req *CreateEntryRequest) (*EntryResponse, error) {
	return invoke[EntryResponse](ctx, c, MethodCreateEntry, req)
}

func (c *Client) ReadEntry(ctx context.Context, id string) (*ReadEntryResponse, error) {
	return invoke[ReadEntryResponse](ctx, c, MethodReadEntry, &IDRequest{ID: id})
}

func (c *Client) UpdateEntry(ctx context.Context, req *UpdateEntryRequest) (*EntryResponse, error) {
	return invoke[EntryResponse](ctx, c, MethodUpdateEntry, req)
}

func (c *Client) DeleteEntry(ctx context.Context, id string) error {
	_, err := invoke[Empty](ctx, c, MethodDeleteEntry, &IDRequest{ID: id})
	return err
}

func (c *Client) ListEntries(ctx context.Context, req *ListEntriesRequest) (*ListEntriesResponse, error) {
	return invoke[ListEntriesResponse](ctx, c, MethodListEntries, req)
}

func (c *Client) AttachMedia(ctx context.Context, req *AttachMediaRequest) (*MediaResponse, error) {
	return invoke[MediaResponse](ctx, c, MethodAttachMedia, req)
}

func (c *Client) ReadMedia(ctx context.Context, id string) (*ReadMediaResponse, error) {
	return invoke[ReadMediaResponse](ctx, c, MethodReadMedia, &IDRequest{ID: id})
}

func (c *Client) ListMedia(ctx context.Context, entryID string) (*ListMediaResponse, error) {
	return invoke[ListMediaResponse](ctx, c, MethodListMedia, &ListMediaRequest{EntryID: entryID})
}

func (c *Client) DeleteMedia(ctx context.Context, id string) error {
	_, err := invoke[Empty](ctx, c, MethodDeleteMedia, &IDRequest{ID: id})
	return err
}

func (c *Client) Calendar(ctx context.Context, req *CalendarRequest) (*CalendarResponse, error) {
	return invoke[CalendarResponse](ctx, c, MethodCalendar, req)
}

func (c *Client) MoodStats(ctx context.Context) (*MoodStatsResponse, error) {
	return invoke[MoodStatsResponse](ctx, c, MethodMoodStats, &Empty{})
}

func (c *Client) SetupRecovery(ctx context.Context, req *SetupRecoveryRequest) (*SetupRecoveryResponse, error) {
	return invoke[SetupRecoveryResponse](ctx, c, MethodSetupRecovery, req)
}

func (c *Client) GetRecoveryQuestions(ctx context.Context, username string) (*RecoveryQuestionsResponse, error) {
	return invoke[RecoveryQuestionsResponse](ctx, c, MethodGetRecoveryQuestions, &RecoveryQuestionsRequest{Username: username})
}

func (c *Client) ResetPasswordWithAnswers(ctx context.Context, req *ResetWithAnswersRequest) error {
	_, err := invoke[Empty](ctx, c, MethodResetPasswordWithAnswers, req)
	return err
}

func (c *Client) ResetPasswordWithRecoveryKey(ctx context.Context, req *ResetWithRecoveryKeyRequest) error {
	_, err := invoke[Empty](ctx, c, MethodResetPasswordWithRecoveryKey, req)
	return err
}
