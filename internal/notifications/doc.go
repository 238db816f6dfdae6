// Package notifications sends ntfy alerts when supervision gives up on the
// companion process.
//
// A Service with no configured topic is a no-op, so callers publish
// unconditionally and never branch on configuration.
package notifications
