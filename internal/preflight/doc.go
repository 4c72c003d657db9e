// Package preflight provides readiness checks for the filesystem paths and
// device nodes the session daemon depends on.
//
// The daemon calls RunAll before starting the manager and refuses to start
// when a required check fails. The CLI "midisession status" command shows
// the same results.
package preflight
