// Package main hosts the monistor CLI entrypoint and command graph.
//
// The Cobra command tree runs the daemon in the foreground, launches and
// stops it in the background, and translates the remaining invocations into
// JSON-RPC calls over the control socket. The shell glue uses notify and
// commands to forward display and modal events and to pick up the
// instructions the watchdog issues in response.
//
// Configuration loading and socket discovery live in commandContext so the
// individual commands only deal with presentation.
package main
