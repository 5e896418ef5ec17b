package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/ry-diffusion/Tina/internal/api"
	"github.com/ry-diffusion/Tina/internal/lock"
	"github.com/ry-diffusion/Tina/internal/paths"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server manages the control socket.
type Server struct {
	grpcServer *grpc.Server
	control    *api.Control
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

// NewServer binds the control socket. It takes the daemon lock so a second
// daemon never removes the socket of a running one.
func NewServer(layout paths.Layout, _ *lock.Lock, control *api.Control, logger *zap.Logger) (*Server, error) {
	socketPath := layout.SocketPath()

	if _, err := os.Stat(socketPath); err == nil {
		_ = os.Remove(socketPath)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen unix socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}

	srv := grpc.NewServer()
	api.RegisterControlServer(srv, control)

	return &Server{
		grpcServer: srv,
		control:    control,
		listener:   listener,
		socketPath: socketPath,
		logger:     logger,
	}, nil
}

// Start serves requests until Stop.
func (s *Server) Start() error {
	s.logger.Info("control server starting", zap.String("socket", s.socketPath))
	return s.grpcServer.Serve(s.listener)
}

// Stop closes open watch streams, drains in-flight calls and removes the
// socket. In-flight calls are cut off when ctx expires.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("control server stopping")
	s.control.Shutdown()

	drained := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		s.logger.Warn("graceful stop timed out, closing connections")
		s.grpcServer.Stop()
		<-drained
	}
	_ = s.listener.Close()
	_ = os.Remove(s.socketPath)
}
