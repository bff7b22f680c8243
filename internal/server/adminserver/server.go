package adminserver

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/tokmesh/cluster/api/proto/v1/clusterv1connect"
	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/telemetry/logger"
)

// Server hosts the ClusterAdmin Connect service on a plain HTTP mux,
// mirroring the teacher's httpserver accept-loop shape.
type Server struct {
	addr string
	log  logger.Logger
	mux  *http.ServeMux
	http *http.Server
	ln   net.Listener
}

// New constructs a Server serving the ClusterAdmin handler on a fresh mux.
// No interceptors are installed.
func New(addr string, node *clusternode.Node, discoverer Discoverer, log logger.Logger) *Server {
	handler := NewHandler(node, discoverer, log)
	mux := http.NewServeMux()
	path, h := clusterv1connect.NewClusterAdminServiceHandler(handler)
	mux.Handle(path, h)

	return &Server{
		addr: addr,
		log:  log,
		mux:  mux,
		http: &http.Server{Handler: mux},
	}
}

// Handle registers an additional handler on the admin HTTP mux, for
// auxiliary endpoints like /metrics that share the admin listener rather
// than opening a port of their own.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// ListenAndServe binds addr and serves ClusterAdmin until ctx is canceled
// or Shutdown closes the listener.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("adminserver listening", "address", s.addr)

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the bound listener address, or nil before ListenAndServe
// has started.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
