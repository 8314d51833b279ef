// Package common contains shared constants and sentinel errors used across
// diarykeeper components.
package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// MinLoginPasswordLength is the shortest account login password accepted on
// registration and recovery resets. The diary password has no such policy.
const MinLoginPasswordLength = 8
