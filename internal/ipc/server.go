package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"
	"time"

	"monistor/internal/daemon"
	"monistor/internal/logging"
	"monistor/internal/logs"
)

const (
	// ServiceName is the RPC receiver name clients call into.
	ServiceName = "Monistor"

	defaultCommandWait = 25 * time.Second
	maxCommandWait     = time.Minute
	defaultFollowWait  = time.Second
)

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path. shutdown is
// invoked once when a client calls Shutdown; it may be nil.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, shutdown func()) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx, shutdown: shutdown}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				done := make(chan struct{})
				defer close(done)
				go func() {
					select {
					case <-s.ctx.Done():
						_ = c.Close()
					case <-done:
					}
				}()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server, drops open connections, and removes the socket
// file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun monistor stop"))
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown func()
	once     sync.Once
}

func (s *service) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "ipc")
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = statusResponse(s.daemon.Status(s.ctx), s.daemon.LogPath())
	return nil
}

func (s *service) Enable(_ EnableRequest, resp *EnableResponse) error {
	s.log().Debug("enable requested")
	if err := s.daemon.Enable(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Enabled = true
	resp.Message = "supervision enabled"
	s.log().Info("extension enabled via IPC",
		logging.String(logging.FieldEventType, "extension_enable"))
	return nil
}

func (s *service) Disable(_ DisableRequest, resp *DisableResponse) error {
	s.log().Debug("disable requested")
	if err := s.daemon.Disable(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Disabled = true
	resp.Message = "supervision disabled"
	s.log().Info("extension disabled via IPC",
		logging.String(logging.FieldEventType, "extension_disable"))
	return nil
}

func (s *service) Notify(req NotifyRequest, resp *NotifyResponse) error {
	if err := s.daemon.Notify(req.Kind, req.Stack); err != nil {
		return err
	}
	resp.Accepted = true
	return nil
}

func (s *service) NextCommand(req NextCommandRequest, resp *NextCommandResponse) error {
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	switch {
	case wait < 0:
		wait = 0
	case wait == 0:
		wait = defaultCommandWait
	case wait > maxCommandWait:
		wait = maxCommandWait
	}
	cmd, ok, err := s.daemon.NextCommand(s.ctx, wait)
	if err != nil {
		return err
	}
	resp.Available = ok
	resp.Command = cmd
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	entries, err := s.daemon.History(s.ctx, req.Limit)
	if err != nil {
		return err
	}
	resp.Entries = entries
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = defaultFollowWait
	}
	ctx := s.ctx
	if req.Follow && wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, s.daemon.LogPath(), logs.TailOptions{
		Offset:   req.Offset,
		Limit:    req.Limit,
		Follow:   req.Follow,
		Wait:     wait,
		Contains: req.Contains,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			resp.Offset = result.Offset
			return nil
		}
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	if err := s.daemon.TestNotification(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Sent = true
	resp.Message = "test notification sent"
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	s.log().Info("shutdown requested via IPC",
		logging.String(logging.FieldEventType, "daemon_shutdown"))
	resp.Stopping = true
	if s.shutdown != nil {
		// Run after the reply is written so the caller sees it.
		s.once.Do(func() { time.AfterFunc(50*time.Millisecond, s.shutdown) })
	}
	return nil
}

func statusResponse(st daemon.Status, logPath string) StatusResponse {
	ext := st.Extension
	resp := StatusResponse{
		Running:        st.Running,
		PID:            st.PID,
		SessionID:      st.Session,
		StartedAt:      st.StartedAt,
		LockPath:       st.LockFilePath,
		HistoryPath:    st.HistoryPath,
		LogPath:        logPath,
		Enabled:        ext.Enabled,
		Cycles:         ext.Cycles,
		StartupPending: ext.StartupPending,
		Subscriptions:  ext.Subscriptions,
		Bridge: BridgeStatus{
			Subscriptions: st.Bridge.Subscriptions,
			ModalStack:    st.Bridge.ModalStack,
			Queued:        st.Bridge.Queued,
			Issued:        st.Bridge.Issued,
			Dropped:       st.Bridge.Dropped,
			Notifications: st.Bridge.Notifications,
		},
		Hotplug: HotplugStatus{
			Running:   st.Hotplug.Running,
			Events:    st.Hotplug.Events,
			LastEvent: st.Hotplug.LastEvent,
			LastCard:  st.Hotplug.LastCard,
		},
		HistoryWritten: st.HistoryCount,
		HistoryDropped: st.HistoryDrops,
	}
	if snap := ext.Supervisor; snap != nil {
		sup := &SupervisorStatus{
			State:       string(snap.State),
			Binary:      snap.Binary,
			PID:         snap.PID,
			Spawns:      snap.Spawns,
			Attempts:    snap.Attempts,
			NextRestart: snap.NextRestart,
		}
		if snap.LastExit != nil {
			sup.LastExit = snap.LastExit.String()
		}
		resp.Supervisor = sup
	}
	if stats := ext.Watchdog; stats != nil {
		resp.Watchdog = &WatchdogStatus{
			Accepted:    stats.Accepted,
			Closed:      stats.Closed,
			LeftOpen:    stats.LeftOpen,
			EmptyStack:  stats.EmptyStack,
			Pending:     stats.Pending,
			LastTrusted: stats.LastTrusted,
		}
	}
	return resp
}
