// Package respserver implements the client-port listener of §6: one
// accept-loop goroutine per listener, one session goroutine per connection,
// RESP commands carried inside the wire package's length-prefixed encrypted
// frame envelope.
package respserver

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/tokmesh/cluster/internal/clusternode"
	"github.com/tokmesh/cluster/internal/executor"
	"github.com/tokmesh/cluster/internal/pubsub"
	"github.com/tokmesh/cluster/internal/telemetry/logger"
	"github.com/tokmesh/cluster/pkg/crypto/adaptive"
)

// Server accepts client-port connections and serves each on its own
// session goroutine.
type Server struct {
	addr   string
	cipher adaptive.Cipher
	node   *clusternode.Node
	exec   *executor.Executor
	broker *pubsub.Broker
	log    logger.Logger

	ln net.Listener
	wg sync.WaitGroup
}

// New constructs a Server. cipher may be nil to run the client port
// unencrypted (local development / tests).
func New(addr string, cipher adaptive.Cipher, node *clusternode.Node, exec *executor.Executor, broker *pubsub.Broker, log logger.Logger) *Server {
	return &Server{addr: addr, cipher: cipher, node: node, exec: exec, broker: broker, log: log}
}

// ListenAndServe binds addr and runs the accept loop until ctx is canceled
// or Shutdown closes the listener.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.log.Info("respserver listening", "address", s.addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("respserver accept error", "error", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess := newSession(conn, s.cipher, s.node, s.exec, s.broker, s.log)
			sess.run(ctx)
		}()
	}
}

// Shutdown closes the listener and waits for in-flight sessions to exit.
func (s *Server) Shutdown(context.Context) error {
	if s.ln != nil {
		_ = s.ln.Close()
	}
	s.wg.Wait()
	return nil
}
