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

	"midisession/internal/daemon"
	"midisession/internal/logging"
	"midisession/internal/logs"
	"midisession/internal/manager"
)

const serviceName = "Midisession"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path. shutdown is
// called when a client requests the daemon process to exit; it may be nil.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, shutdown context.CancelFunc) (*Server, error) {
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

	rpcServer := rpc.NewServer()
	srv := &service{
		daemon:   d,
		logger:   logging.NewComponentLogger(logger, "ipc"),
		ctx:      ctx,
		shutdown: shutdown,
	}
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
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
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually or rerun midisession stop"),
		)
	}
}

type service struct {
	daemon   *daemon.Daemon
	logger   *slog.Logger
	ctx      context.Context
	shutdown context.CancelFunc
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.logger.Info("daemon started via IPC", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.daemon.Stop()
	resp.Stopped = true
	s.logger.Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Shutdown(_ ShutdownRequest, resp *ShutdownResponse) error {
	if s.shutdown == nil {
		return errors.New("shutdown not supported by this server")
	}
	s.logger.Info("shutdown requested via IPC", logging.String(logging.FieldEventType, "daemon_shutdown_requested"))
	// The reply must leave before the listener closes.
	time.AfterFunc(50*time.Millisecond, s.shutdown)
	resp.Accepted = true
	return nil
}

func (s *service) TestNotification(_ TestNotificationRequest, resp *TestNotificationResponse) error {
	if err := s.daemon.TestNotification(s.ctx); err != nil {
		return err
	}
	resp.Sent = true
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	*resp = StatusResponse{
		Running:             status.Running,
		PID:                 status.PID,
		SessionID:           status.SessionID,
		ClientName:          status.ClientName,
		Backend:             status.Backend,
		StartedAt:           status.StartedAt,
		LockPath:            status.LockFilePath,
		IDStorePath:         status.IDStorePath,
		Devices:             status.Devices,
		Sources:             status.Sources,
		Destinations:        status.Destinations,
		Resources:           status.Resources,
		PacketsReceived:     status.PacketsReceived,
		Notifications:       status.Notifications,
		RecentNotifications: status.RecentNotifications,
		HotplugActive:       status.HotplugActive,
	}
	return nil
}

func (s *service) Endpoints(req EndpointsRequest, resp *EndpointsResponse) error {
	if req.Owned && req.Unowned {
		return errors.New("owned and unowned filters are mutually exclusive")
	}
	endpoints, owned, err := s.daemon.Endpoints()
	if err != nil {
		return err
	}
	resp.Endpoints = make([]Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		isOwned := owned[ep.Handle]
		if (req.Owned && !isOwned) || (req.Unowned && isOwned) {
			continue
		}
		resp.Endpoints = append(resp.Endpoints, endpointDTO(ep, isOwned))
	}
	return nil
}

func (s *service) Resources(_ ResourcesRequest, resp *ResourcesResponse) error {
	resources, err := s.daemon.Resources()
	if err != nil {
		return err
	}
	resp.Resources = resources
	return nil
}

func (s *service) Remove(req RemoveRequest, resp *RemoveResponse) error {
	kind, err := manager.ParseResourceKind(req.Kind)
	if err != nil {
		return err
	}
	removed := 1
	if req.Tag == "" {
		removed = 0
		resources, err := s.daemon.Resources()
		if err != nil {
			return err
		}
		for _, r := range resources {
			if r.Kind == kind {
				removed++
			}
		}
	}
	if err := s.daemon.Remove(s.ctx, kind, req.Tag); err != nil {
		return err
	}
	resp.Removed = removed
	s.logger.Info("resources removed via IPC",
		logging.String(logging.FieldEventType, "resources_removed"),
		logging.String(logging.FieldResourceKind, kind.String()),
		logging.String(logging.FieldTag, req.Tag),
		logging.Int("removed_count", removed),
	)
	return nil
}

func (s *service) LogTail(req LogTailRequest, resp *LogTailResponse) error {
	logPath := s.daemon.LogPath()
	if logPath == "" {
		return nil
	}
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait <= 0 && req.Follow {
		wait = time.Second
	}
	ctx := s.ctx
	if req.Follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait+500*time.Millisecond)
		defer cancel()
	}
	result, err := logs.Tail(ctx, logPath, logs.TailOptions{
		Offset: req.Offset,
		Limit:  req.Limit,
		Follow: req.Follow,
		Wait:   wait,
		Match:  logs.Match{Component: req.Component, EventType: req.EventType, Tag: req.Tag},
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp.Lines = result.Lines
	resp.Offset = result.Offset
	return nil
}
