// Package ipc exposes daemon control via JSON-RPC over a Unix domain socket.
// The HTTP API serves annotation traffic; this socket serves operator
// commands that must work even when the HTTP bind is firewalled.
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

	"curator/internal/daemon"
	"curator/internal/logging"
)

// Server accepts control connections on the socket path.
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

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
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
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName("Curator", srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
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

// Serve accepts RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("ipc server listening",
		logging.String(logging.FieldComponent, "ipc"),
		logging.String("socket", s.path))
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
				s.logger.Warn("accept failed",
					logging.String(logging.FieldComponent, "ipc"),
					logging.Error(err))
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
		s.logger.Warn("failed to remove socket",
			logging.String(logging.FieldComponent, "ipc"),
			logging.String("socket", s.path),
			logging.Error(err))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) Ping(_ PingRequest, resp *PingResponse) error {
	resp.Message = "pong"
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status := s.daemon.Status(s.ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.APIBind = status.APIBind
	resp.LedgerDBPath = status.LedgerDBPath
	resp.JobsDBPath = status.JobsDBPath
	resp.LockPath = status.LockPath
	resp.SampleCount = status.SampleCount
	resp.JobCounts = status.JobCounts
	return nil
}

func (s *service) Sync(_ SyncRequest, resp *SyncResponse) error {
	svc := s.daemon.Service()
	if svc == nil {
		return errors.New("daemon is not running")
	}
	job, err := svc.SyncLibrary(s.ctx)
	if err != nil {
		return err
	}
	resp.JobID = job.ID
	s.logger.Info("library sync requested via ipc",
		logging.String(logging.FieldComponent, "ipc"),
		logging.String(logging.FieldJobID, job.ID))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.logger.Info("daemon stop requested via ipc",
		logging.String(logging.FieldComponent, "ipc"))
	go s.daemon.Stop()
	resp.Stopped = true
	return nil
}
