package rpc

const ServiceName = "diarykeeper.DiaryService"

const (
	MethodPing                         = "Ping"
	MethodRegister                     = "Register"
	MethodLogin                        = "Login"
	MethodLogout                       = "Logout"
	MethodChangeLoginPassword          = "ChangeLoginPassword"
	MethodGetStatus                    = "GetStatus"
	MethodSetup                        = "Setup"
	MethodUnlock                       = "Unlock"
	MethodLock                         = "Lock"
	MethodGetHint                      = "GetHint"
	MethodChangePassword               = "ChangePassword"
	MethodCreateEntry                  = "CreateEntry"
	MethodReadEntry                    = "ReadEntry"
	MethodUpdateEntry                  = "UpdateEntry"
	MethodDeleteEntry                  = "DeleteEntry"
	MethodListEntries                  = "ListEntries"
	MethodAttachMedia                  = "AttachMedia"
	MethodReadMedia                    = "ReadMedia"
	MethodListMedia                    = "ListMedia"
	MethodDeleteMedia                  = "DeleteMedia"
	MethodCalendar                     = "Calendar"
	MethodMoodStats                    = "MoodStats"
	MethodSetupRecovery                = "SetupRecovery"
	MethodGetRecoveryQuestions         = "GetRecoveryQuestions"
	MethodResetPasswordWithAnswers     = "ResetPasswordWithAnswers"
	MethodResetPasswordWithRecoveryKey = "ResetPasswordWithRecoveryKey"
)

// FullMethod returns the gRPC path of a method, e.g.
// "/diarykeeper.DiaryService/Unlock".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// publicMethods can be called without an access token.
var publicMethods = map[string]bool{
	FullMethod(MethodPing):                         true,
	FullMethod(MethodRegister):                     true,
	FullMethod(MethodLogin):                        true,
	FullMethod(MethodGetRecoveryQuestions):         true,
	FullMethod(MethodResetPasswordWithAnswers):     true,
	FullMethod(MethodResetPasswordWithRecoveryKey): true,
}

// IsPublic reports whether fullMethod skips authentication.
func IsPublic(fullMethod string) bool { return publicMethods[fullMethod] }
