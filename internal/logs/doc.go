// Package logs tails the daemon log file for the CLI.
//
// Tail reads with bounded memory, supports a negative offset for "last N
// lines", and in follow mode polls until new lines arrive or the wait runs
// out. The server side of the logs RPC calls it with a context deadline so a
// disconnected client never leaves a poller behind.
package logs
