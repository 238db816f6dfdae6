// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI and the shell glue.
//
// It owns socket lifecycle management and the request/response DTOs. Status
// flattens supervisor, watchdog, bridge, and hotplug state into wire types so
// the CLI never imports loop-owned packages. NextCommand is a long poll; the
// server caps the wait so a stuck client cannot pin a handler forever.
package ipc
