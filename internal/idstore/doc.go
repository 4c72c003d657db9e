// Package idstore persists the unique ids of the session's virtual ports in
// a small SQLite database so ports keep their identity across restarts.
//
// Rows are keyed by resource tag and port direction. Cell adapts one row to
// the manager's IDCell contract.
package idstore
