// Package daemon coordinates the long-running monistor process.
//
// It wires the event loop, the shell bridge, the extension lifecycle, the
// history recorder, and the DRM hotplug monitor into a single lifecycle with
// flock-based locking to prevent multiple instances. Every read or change of
// supervisor and watchdog state goes through the loop, so the IPC layer can
// call Daemon methods from any goroutine.
//
// Keep orchestration logic here: restart policy belongs to the supervisor and
// modal correlation to the watchdog, while the daemon focuses on startup,
// shutdown, and high level coordination.
package daemon
