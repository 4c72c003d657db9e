// Command midisession inspects MIDI topology and controls the midisession
// daemon.
//
// devices, endpoints, watch and thru open a short-lived session of their
// own against the configured backend. status, resources, remove and logs
// talk to the running daemon over its IPC socket; start, stop and run
// manage the daemon process itself.
package main
