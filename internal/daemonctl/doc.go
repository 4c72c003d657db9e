// Package daemonctl launches, stops and inspects the midisession daemon from
// the CLI side of the IPC socket.
package daemonctl
