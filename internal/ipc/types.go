package ipc

import (
	"time"

	"monistor/internal/bridge"
	"monistor/internal/history"
)

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// SupervisorStatus mirrors supervisor.Snapshot for the wire.
type SupervisorStatus struct {
	State       string      `json:"state"`
	Binary      string      `json:"binary"`
	PID         int         `json:"pid"`
	Spawns      int         `json:"spawns"`
	Attempts    []time.Time `json:"attempts"`
	LastExit    string      `json:"last_exit,omitempty"`
	NextRestart time.Time   `json:"next_restart,omitzero"`
}

// WatchdogStatus mirrors watchdog.Stats.
type WatchdogStatus struct {
	Accepted    int       `json:"accepted"`
	Closed      int       `json:"closed"`
	LeftOpen    int       `json:"left_open"`
	EmptyStack  int       `json:"empty_stack"`
	Pending     int       `json:"pending"`
	LastTrusted time.Time `json:"last_trusted,omitzero"`
}

// BridgeStatus mirrors bridge.Stats.
type BridgeStatus struct {
	Subscriptions int            `json:"subscriptions"`
	ModalStack    int            `json:"modal_stack"`
	Queued        int            `json:"queued"`
	Issued        uint64         `json:"issued"`
	Dropped       uint64         `json:"dropped"`
	Notifications map[string]int `json:"notifications"`
}

// HotplugStatus mirrors the DRM hotplug monitor counters.
type HotplugStatus struct {
	Running   bool      `json:"running"`
	Events    int       `json:"events"`
	LastEvent time.Time `json:"last_event,omitzero"`
	LastCard  string    `json:"last_card,omitempty"`
}

// StatusResponse represents combined daemon, supervisor, and watchdog state.
type StatusResponse struct {
	Running        bool              `json:"running"`
	PID            int               `json:"pid"`
	SessionID      string            `json:"session_id"`
	StartedAt      time.Time         `json:"started_at,omitzero"`
	LockPath       string            `json:"lock_path"`
	HistoryPath    string            `json:"history_path,omitempty"`
	LogPath        string            `json:"log_path"`
	Enabled        bool              `json:"enabled"`
	Cycles         int               `json:"cycles"`
	StartupPending bool              `json:"startup_pending"`
	Subscriptions  int               `json:"subscriptions"`
	Supervisor     *SupervisorStatus `json:"supervisor,omitempty"`
	Watchdog       *WatchdogStatus   `json:"watchdog,omitempty"`
	Bridge         BridgeStatus      `json:"bridge"`
	Hotplug        HotplugStatus     `json:"hotplug"`
	HistoryWritten uint64            `json:"history_written"`
	HistoryDropped uint64            `json:"history_dropped"`
}

// EnableRequest starts an activation cycle.
type EnableRequest struct{}

// EnableResponse reports the outcome of Enable.
type EnableResponse struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

// DisableRequest ends the activation cycle.
type DisableRequest struct{}

// DisableResponse reports the outcome of Disable.
type DisableResponse struct {
	Disabled bool   `json:"disabled"`
	Message  string `json:"message"`
}

// NotifyRequest carries one shell notification. A nil Stack leaves the
// modal stack snapshot untouched; an empty one clears it.
type NotifyRequest struct {
	Kind  string   `json:"kind"`
	Stack []string `json:"stack"`
}

// NotifyResponse acknowledges a notification.
type NotifyResponse struct {
	Accepted bool `json:"accepted"`
}

// Command is a queued shell instruction.
type Command = bridge.Command

// NextCommandRequest long-polls for a shell instruction.
type NextCommandRequest struct {
	WaitMillis int `json:"wait_ms"`
}

// NextCommandResponse holds the command when Available is true.
type NextCommandResponse struct {
	Available bool    `json:"available"`
	Command   Command `json:"command"`
}

// HistoryEntry is one recorded event.
type HistoryEntry = history.Entry

// HistoryRequest lists recorded events, newest first.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// HistoryResponse contains recorded events.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// LogTailRequest reads the daemon log file.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_ms"`
	Contains   string `json:"contains"`
}

// LogTailResponse returns log lines and the offset to resume from.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest sends a test alert through the configured notifier.
type TestNotificationRequest struct{}

// TestNotificationResponse reports whether the alert was delivered.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// ShutdownRequest asks the daemon process to exit.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Stopping bool `json:"stopping"`
}
