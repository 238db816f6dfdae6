// Package history persists supervisor and watchdog decisions in SQLite so
// `monistor history` can show what happened across daemon restarts.
//
// Store is the synchronous database layer. Recorder sits in front of it and
// writes from its own goroutine so the event loop never waits on disk.
package history
