// Package daemonrun assembles and runs the midisession daemon process:
// logger, preflight checks, id store, transport backend, daemon and IPC
// server. Both cmd/midisessiond and `midisession run` call Run.
package daemonrun
