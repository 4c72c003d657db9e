// Package logs reads the daemon log file for `midisession logs` and the IPC
// LogTail call.
//
// Tail returns the last N lines or everything after a byte offset, and in
// follow mode waits for new lines until the deadline passes. A Match narrows
// the result to one component, event type or resource tag; JSON lines are
// matched on their fields and console lines on their text.
package logs
