// Package cli provides the interactive diary command-line client.
//
// It wires configuration and the gRPC client into a REPL. Typical flow:
// login, unlock the diary, then read and write entries and media. A
// background watcher pings the server and shows online/offline in the
// prompt.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
