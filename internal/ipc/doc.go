// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// The server owns the socket lifecycle and converts daemon and session state
// into the wire types in types.go. Status, endpoint and resource listings are
// read-only; Remove, Start, Stop and Shutdown change daemon state.
package ipc
