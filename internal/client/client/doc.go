// Package client is the CLI's connection to the diary server: a gRPC
// client that carries the access token on every call and turns status
// codes back into the sentinel errors of package common.
package client
