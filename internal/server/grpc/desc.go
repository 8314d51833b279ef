package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/dmitrijs2005/diarykeeper/internal/rpc"
)

// unary adapts a typed handler to grpc.MethodDesc, running the server's
// interceptor chain like generated code does.
func unary[Req any, Resp any](method string, call func(s *GRPCServer, ctx context.Context, req *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			s := srv.(*GRPCServer)
			if interceptor == nil {
				return call(s, ctx, req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpc.FullMethod(method)}
			return interceptor(ctx, req, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: rpc.ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary(rpc.MethodPing, (*GRPCServer).Ping),
		unary(rpc.MethodRegister, (*GRPCServer).Register),
		unary(rpc.MethodLogin, (*GRPCServer).Login),
		unary(rpc.MethodLogout, (*GRPCServer).Logout),
		unary(rpc.MethodChangeLoginPassword, (*GRPCServer).ChangeLoginPassword),
		unary(rpc.MethodGetStatus, (*GRPCServer).GetStatus),
		unary(rpc.MethodSetup, (*GRPCServer).Setup),
		unary(rpc.MethodUnlock, (*GRPCServer).Unlock),
		unary(rpc.MethodLock, (*GRPCServer).Lock),
		unary(rpc.MethodGetHint, (*GRPCServer).GetHint),
		unary(rpc.MethodChangePassword, (*GRPCServer).ChangePassword),
		unary(rpc.MethodCreateEntry, (*GRPCServer).CreateEntry),
		unary(rpc.MethodReadEntry, (*GRPCServer).ReadEntry),
		unary(rpc.MethodUpdateEntry, (*GRPCServer).UpdateEntry),
		unary(rpc.MethodDeleteEntry, (*GRPCServer).DeleteEntry),
		unary(rpc.MethodListEntries, (*GRPCServer).ListEntries),
		unary(rpc.MethodAttachMedia, (*GRPCServer).AttachMedia),
		unary(rpc.MethodReadMedia, (*GRPCServer).ReadMedia),
		unary(rpc.MethodListMedia, (*GRPCServer).ListMedia),
		unary(rpc.MethodDeleteMedia, (*GRPCServer).DeleteMedia),
		unary(rpc.MethodCalendar, (*GRPCServer).Calendar),
		unary(rpc.MethodMoodStats, (*GRPCServer).MoodStats),
		unary(rpc.MethodSetupRecovery, (*GRPCServer).SetupRecovery),
		unary(rpc.MethodGetRecoveryQuestions, (*GRPCServer).GetRecoveryQuestions),
		unary(rpc.MethodResetPasswordWithAnswers, (*GRPCServer).ResetPasswordWithAnswers),
		unary(rpc.MethodResetPasswordWithRecoveryKey, (*GRPCServer).ResetPasswordWithRecoveryKey),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "diarykeeper/diary.cbor",
}
