package daemon

import (
	"context"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"

	"monistor/internal/config"
	"monistor/internal/history"
	"monistor/internal/logging"
)

// HotplugStatus summarizes DRM hotplug traffic seen by the monitor.
type HotplugStatus struct {
	Running   bool
	Events    int
	LastEvent time.Time
	LastCard  string
}

// hotplugMonitor listens for udev DRM connector change events. It only logs
// and counts them; the watchdog relies on the shell's confirmation signal.
type hotplugMonitor struct {
	logger   *slog.Logger
	recorder *history.Recorder
	now      func() time.Time

	mu      sync.Mutex
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
	status  HotplugStatus
}

// newHotplugMonitor returns nil when hotplug monitoring is disabled.
func newHotplugMonitor(cfg *config.Config, logger *slog.Logger, recorder *history.Recorder) *hotplugMonitor {
	if cfg == nil || !cfg.Hotplug.Enabled {
		return nil
	}
	return &hotplugMonitor{
		logger:   logging.NewComponentLogger(logger, "hotplug"),
		recorder: recorder,
		now:      time.Now,
	}
}

// Start begins listening for udev netlink events.
func (m *hotplugMonitor) Start(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		m.logger.Warn("failed to connect to netlink socket; hotplug diagnostics disabled",
			logging.Error(err),
			logging.String(logging.FieldEventType, "netlink_connect_failed"),
			logging.String(logging.FieldErrorHint, "ensure the session can open NETLINK_KOBJECT_UEVENT sockets"),
			logging.String(logging.FieldImpact, "display hotplug events will not be logged"),
		)
		return nil
	}

	m.conn = conn
	m.quit = make(chan struct{})
	m.running = true

	quit := m.quit
	go m.monitorLoop(ctx, conn, quit)

	m.logger.Info("hotplug monitor started",
		logging.String(logging.FieldEventType, "hotplug_monitor_started"),
	)
	return nil
}

// Stop shuts down the monitor. It is safe on a nil or stopped monitor.
func (m *hotplugMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.running = false

	m.logger.Info("hotplug monitor stopped",
		logging.String(logging.FieldEventType, "hotplug_monitor_stopped"),
	)
}

// Status reports counters. A nil monitor reports the zero value.
func (m *hotplugMonitor) Status() HotplugStatus {
	if m == nil {
		return HotplugStatus{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.status
	st.Running = m.running
	return st
}

func (m *hotplugMonitor) monitorLoop(ctx context.Context, conn *netlink.UEventConn, quit <-chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := conn.Monitor(queue, errs, m.buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			m.handleEvent(uevent)
		case err := <-errs:
			m.logger.Warn("netlink monitor error",
				logging.Error(err),
				logging.String(logging.FieldEventType, "netlink_monitor_error"),
				logging.String(logging.FieldErrorHint, "check kernel netlink subsystem"),
				logging.String(logging.FieldImpact, "hotplug events may be missed"),
			)
		}
	}
}

// buildMatcher matches SUBSYSTEM=drm, HOTPLUG=1, ACTION=change.
func (m *hotplugMonitor) buildMatcher() netlink.Matcher {
	action := "change"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "drm",
			"HOTPLUG":   "1",
		},
	})
	return rules
}

func (m *hotplugMonitor) handleEvent(uevent netlink.UEvent) {
	card := cardName(uevent)
	at := m.now()

	m.mu.Lock()
	m.status.Events++
	m.status.LastEvent = at
	m.status.LastCard = card
	m.mu.Unlock()

	m.logger.Info("display hotplug detected",
		logging.String(logging.FieldEventType, "drm_hotplug"),
		logging.String("card", card),
		logging.String("connector", uevent.Env["CONNECTOR"]),
		logging.String("action", string(uevent.Action)),
	)
	m.recorder.Record(history.Entry{
		At:     at,
		Source: history.SourceHotplug,
		Kind:   "drm_hotplug",
		Detail: card,
	})
}

// cardName prefers DEVNAME and falls back to the last DEVPATH element.
func cardName(uevent netlink.UEvent) string {
	if devname := uevent.Env["DEVNAME"]; devname != "" {
		return path.Base(devname)
	}
	if devpath := uevent.Env["DEVPATH"]; devpath != "" {
		return path.Base(devpath)
	}
	if uevent.KObj != "" {
		return path.Base(uevent.KObj)
	}
	return ""
}
